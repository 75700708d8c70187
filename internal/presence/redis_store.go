package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
)

// RedisStore keeps presence in a hash per user and announces every change on
// a pub/sub channel of the same name. Hashes expire after ttl, so a crashed
// process stops reporting its users online.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func key(userID string) string { return "presence:" + userID }

func (s *RedisStore) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	p := models.Presence{UserID: userID, IsOnline: online, LastSeenAt: &at}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key(userID), "isOnline", strconv.FormatBool(online), "lastSeenAt", at.UTC().Format(time.RFC3339Nano))
	if s.ttl > 0 {
		pipe.Expire(ctx, key(userID), s.ttl)
	}
	pipe.Publish(ctx, key(userID), body)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, userID string) (models.Presence, error) {
	fields, err := s.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Presence{}, err
	}
	return decodeHash(userID, fields), nil
}

func (s *RedisStore) Follow(ctx context.Context, userID string) (*Feed, error) {
	pubsub := s.rdb.Subscribe(ctx, key(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe presence: %w", err)
	}

	feed := newFeed(func() { _ = pubsub.Close() })
	if current, err := s.Get(ctx, userID); err == nil {
		feed.send(current)
	}

	go func() {
		defer feed.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-feed.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p models.Presence
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					logger.Errorf("presence message for %s: %v", userID, err)
					continue
				}
				feed.send(p)
			}
		}
	}()
	return feed, nil
}

// decodeHash reads a presence hash; a missing hash means offline.
func decodeHash(userID string, fields map[string]string) models.Presence {
	p := models.Presence{UserID: userID}
	p.IsOnline, _ = strconv.ParseBool(fields["isOnline"])
	if raw := fields["lastSeenAt"]; raw != "" {
		if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			p.LastSeenAt = &at
		}
	}
	return p
}

var _ Store = (*RedisStore)(nil)
