package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_http_requests_total",
			Help: "Total number of HTTP requests processed by the chatlink service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatlink_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatlink_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatlink_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	chatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_chat_requests_total",
			Help: "Chat request operations by outcome.",
		},
		[]string{"op", "outcome"},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_messages_sent_total",
			Help: "Messages appended to chats.",
		},
		[]string{"kind"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_notifications_total",
			Help: "Notification outbox deliveries by result.",
		},
		[]string{"result"},
	)
	watchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_watch_errors_total",
			Help: "View-model watches that stopped on an error, by stream.",
		},
		[]string{"stream"},
	)
	presenceWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatlink_presence_writes_total",
			Help: "Presence writes by resulting state and result.",
		},
		[]string{"state", "result"},
	)
	watchesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatlink_watches_active",
			Help: "Live view-model watches by stream.",
		},
		[]string{"stream"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
		chatRequestsTotal,
		messagesSentTotal,
		notificationsTotal,
		watchesActive,
		watchErrorsTotal,
		presenceWritesTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Unmatched paths share one label.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncChatRequest(op, outcome string) {
	chatRequestsTotal.WithLabelValues(op, outcome).Inc()
}

func IncMessageSent(kind string) {
	messagesSentTotal.WithLabelValues(kind).Inc()
}

// IncNotification counts outbox results: delivered, retried or dropped.
func IncNotification(result string) {
	notificationsTotal.WithLabelValues(result).Inc()
}

func IncWatch(stream string) {
	watchesActive.WithLabelValues(stream).Inc()
}

func DecWatch(stream string) {
	watchesActive.WithLabelValues(stream).Dec()
}

func IncWatchError(stream string) {
	watchErrorsTotal.WithLabelValues(stream).Inc()
}

// IncPresenceWrite counts presence writes; online reports the written state.
func IncPresenceWrite(online bool, err error) {
	state, result := "offline", "ok"
	if online {
		state = "online"
	}
	if err != nil {
		result = "error"
	}
	presenceWritesTotal.WithLabelValues(state, result).Inc()
}
