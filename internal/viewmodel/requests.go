package viewmodel

import (
	"context"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/models"
	"chatlink-service/internal/repositories"
)

// SnapshotFiller fills in missing user display data on requests.
type SnapshotFiller interface {
	FillSnapshots(ctx context.Context, reqs []models.ChatRequest) []models.ChatRequest
}

type RequestsState struct {
	Incoming []models.ChatRequest `json:"incoming"`
	Sent     []models.ChatRequest `json:"sent"`
	Err      string               `json:"error,omitempty"`
}

// RequestsView follows the pending requests addressed to a user and every
// request the user sent.
type RequestsView struct {
	base[RequestsState]
	requests repositories.ChatRequestRepository
	filler   SnapshotFiller
	userID   string
	state    RequestsState
}

func NewRequestsView(requests repositories.ChatRequestRepository, filler SnapshotFiller) *RequestsView {
	v := &RequestsView{requests: requests, filler: filler}
	v.pub = NewPublisher[RequestsState]()
	return v
}

func (v *RequestsView) SetUser(ctx context.Context, userID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.userID = userID
	return v.start(ctx)
}

func (v *RequestsView) Retry(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.start(ctx)
}

func (v *RequestsView) start(ctx context.Context) error {
	gen := v.reset()
	v.state = RequestsState{Incoming: []models.ChatRequest{}, Sent: []models.ChatRequest{}}
	userID := v.userID
	if userID == "" {
		v.pub.Publish(v.state)
		return nil
	}

	onErr := func(err error) { v.fail(gen, err) }
	err := v.attach(ctx, "requests.incoming",
		func(ctx context.Context) (*docstore.Subscription, error) {
			return v.requests.WatchIncoming(ctx, userID)
		},
		func(ctx context.Context, snap docstore.Snapshot) error {
			return v.apply(ctx, gen, snap, func(s *RequestsState, reqs []models.ChatRequest) { s.Incoming = reqs })
		},
		onErr,
	)
	if err == nil {
		err = v.attach(ctx, "requests.sent",
			func(ctx context.Context) (*docstore.Subscription, error) {
				return v.requests.WatchSent(ctx, userID)
			},
			func(ctx context.Context, snap docstore.Snapshot) error {
				return v.apply(ctx, gen, snap, func(s *RequestsState, reqs []models.ChatRequest) { s.Sent = reqs })
			},
			onErr,
		)
	}
	if err != nil {
		v.reset()
		v.state.Err = err.Error()
		v.pub.Publish(v.state)
	}
	return err
}

func (v *RequestsView) apply(ctx context.Context, gen uint64, snap docstore.Snapshot, set func(*RequestsState, []models.ChatRequest)) error {
	reqs, err := repositories.DecodeAll[models.ChatRequest](snap.Records)
	if err != nil {
		return err
	}
	reqs = v.filler.FillSnapshots(ctx, reqs)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return nil
	}
	set(&v.state, reqs)
	v.pub.Publish(v.state)
	return nil
}

func (v *RequestsView) fail(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen != gen {
		return
	}
	v.reset()
	v.state.Err = err.Error()
	v.pub.Publish(v.state)
}
