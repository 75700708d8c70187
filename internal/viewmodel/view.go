package viewmodel

import (
	"context"
	"sync"

	"chatlink-service/internal/docstore"
	"chatlink-service/internal/logger"
	"chatlink-service/internal/observability"
)

// base is shared by every view: a publisher for its state, the scope owning
// its watches and a generation that invalidates snapshots from torn-down
// watches.
type base[S any] struct {
	pub *Publisher[S]

	mu    sync.Mutex
	scope Scope
	gen   uint64
}

// States subscribes to the view's state stream.
func (b *base[S]) States() (<-chan S, func()) {
	return b.pub.Subscribe()
}

func (b *base[S]) Latest() (S, bool) {
	return b.pub.Latest()
}

// reset tears down the running watches. Callers hold b.mu.
func (b *base[S]) reset() uint64 {
	b.scope.Dispose()
	b.gen++
	return b.gen
}

// attach opens a watch owned by generation gen. handle runs for every
// snapshot; a snapshot error or a handle error goes to onErr and ends the
// watch. Callers hold b.mu.
func (b *base[S]) attach(
	ctx context.Context,
	stream string,
	open func(context.Context) (*docstore.Subscription, error),
	handle func(context.Context, docstore.Snapshot) error,
	onErr func(error),
) error {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := open(ctx)
	if err != nil {
		cancel()
		return err
	}
	observability.IncWatch(stream)
	var once sync.Once
	b.scope.Add(func() {
		once.Do(func() {
			cancel()
			sub.Close()
			observability.DecWatch(stream)
		})
	})

	go func() {
		for snap := range sub.C() {
			err := snap.Err
			if err == nil {
				err = handle(ctx, snap)
			}
			if err != nil {
				logger.Errorf("%s watch: %v", stream, err)
				observability.IncWatchError(stream)
				onErr(err)
				return
			}
		}
	}()
	return nil
}

// Close tears down every watch of the view.
func (b *base[S]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}
