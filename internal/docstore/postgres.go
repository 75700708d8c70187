package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chatlink-service/internal/logger"
)

// NotifyChannel is the LISTEN/NOTIFY channel the documents trigger writes the
// changed collection name to.
const NotifyChannel = "docstore_changes"

const uniqueViolation = "23505"

// Postgres stores documents as JSONB rows of the documents table (see
// internal/db) and drives watches from LISTEN/NOTIFY.
type Postgres struct {
	db       *sqlx.DB
	listener *pq.Listener

	mu       sync.Mutex
	watchers map[string]map[*Subscription]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewPostgres starts listening for document changes on dsn.
func NewPostgres(db *sqlx.DB, dsn string) (*Postgres, error) {
	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Errorf("docstore listener event=%d: %v", ev, err)
		}
	})
	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	p := &Postgres{
		db:       db,
		listener: listener,
		watchers: make(map[string]map[*Subscription]struct{}),
		done:     make(chan struct{}),
	}
	go p.dispatch()
	return p, nil
}

func (p *Postgres) Create(ctx context.Context, collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3::jsonb)
        ON CONFLICT (collection, id) DO NOTHING`, collection, id, string(raw))
	if err != nil {
		return mapPQError(err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConflict
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Record, error) {
	var row documentRow
	err := p.db.GetContext(ctx, &row,
		`SELECT collection, id, data, create_time, update_time FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return row.record(), nil
}

func (p *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any, conds ...Filter) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	where, args, err := buildWhere(conds, 4)
	if err != nil {
		return err
	}
	query := `UPDATE documents SET data = data || $3::jsonb, update_time = NOW()
        WHERE collection=$1 AND id=$2` + where
	res, err := p.db.ExecContext(ctx, query, append([]any{collection, id, string(patch)}, args...)...)
	if err != nil {
		return mapPQError(err)
	}
	return p.checkAffected(ctx, res, collection, id)
}

func (p *Postgres) Delete(ctx context.Context, collection, id string, conds ...Filter) error {
	where, args, err := buildWhere(conds, 3)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`+where,
		append([]any{collection, id}, args...)...)
	if err != nil {
		return mapPQError(err)
	}
	return p.checkAffected(ctx, res, collection, id)
}

// checkAffected tells a missing document apart from a failed condition.
func (p *Postgres) checkAffected(ctx context.Context, res sql.Result, collection, id string) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	var exists bool
	if err := p.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM documents WHERE collection=$1 AND id=$2)`, collection, id); err != nil {
		return err
	}
	if exists {
		return ErrPrecondition
	}
	return ErrNotFound
}

func (p *Postgres) Query(ctx context.Context, q Query) ([]Record, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	where, args, err := buildWhere(q.Filters, 2)
	if err != nil {
		return nil, err
	}
	var rows []documentRow
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT collection, id, data, create_time, update_time FROM documents WHERE collection=$1`+where,
		append([]any{q.Collection}, args...)...); err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return orderRecords(recs, q)
}

func (p *Postgres) Watch(ctx context.Context, q Query) (*Subscription, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	sub := newSubscription(q, p.removeWatcher)

	p.mu.Lock()
	set := p.watchers[q.Collection]
	if set == nil {
		set = make(map[*Subscription]struct{})
		p.watchers[q.Collection] = set
	}
	set[sub] = struct{}{}
	p.mu.Unlock()

	sub.refresh(p.reader(q))
	sub.closeWith(ctx)
	return sub, nil
}

func (p *Postgres) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		var subs []*Subscription
		for _, set := range p.watchers {
			for sub := range set {
				subs = append(subs, sub)
			}
		}
		p.mu.Unlock()
		for _, sub := range subs {
			sub.Close()
		}
		err = errors.Join(p.listener.Close(), p.db.Close())
	})
	return err
}

func (p *Postgres) dispatch() {
	for {
		select {
		case <-p.done:
			return
		case n := <-p.listener.Notify:
			if n == nil {
				// The listener reconnected; changes may have been missed.
				p.refreshAll()
				continue
			}
			p.refreshCollection(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := p.listener.Ping(); err != nil {
					logger.Errorf("docstore listener ping: %v", err)
				}
			}()
		}
	}
}

func (p *Postgres) refreshCollection(collection string) {
	p.mu.Lock()
	subs := make([]*Subscription, 0, len(p.watchers[collection]))
	for sub := range p.watchers[collection] {
		subs = append(subs, sub)
	}
	p.mu.Unlock()

	for _, sub := range subs {
		sub.refresh(p.reader(sub.Query()))
	}
}

func (p *Postgres) refreshAll() {
	p.mu.Lock()
	collections := make([]string, 0, len(p.watchers))
	for c := range p.watchers {
		collections = append(collections, c)
	}
	p.mu.Unlock()
	for _, c := range collections {
		p.refreshCollection(c)
	}
}

func (p *Postgres) reader(q Query) func() Snapshot {
	return func() Snapshot {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		recs, err := p.Query(ctx, q)
		return Snapshot{Records: recs, Err: err}
	}
}

func (p *Postgres) removeWatcher(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.watchers[sub.Query().Collection]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(p.watchers, sub.Query().Collection)
		}
	}
}

type documentRow struct {
	Collection string    `db:"collection"`
	ID         string    `db:"id"`
	Data       []byte    `db:"data"`
	CreateTime time.Time `db:"create_time"`
	UpdateTime time.Time `db:"update_time"`
}

func (r documentRow) record() Record {
	return Record{
		ID:         r.ID,
		Collection: r.Collection,
		Data:       json.RawMessage(r.Data),
		CreateTime: r.CreateTime.UTC(),
		UpdateTime: r.UpdateTime.UTC(),
	}
}

// buildWhere turns filters into " AND ..." clauses with placeholders numbered
// from first. Equality and array membership use JSONB containment so the GIN
// index on data serves them.
func buildWhere(filters []Filter, first int) (string, []any, error) {
	var b strings.Builder
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		n := first + len(args)
		switch f.Op {
		case OpEq:
			frag, err := json.Marshal(map[string]any{f.Field: f.Value})
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&b, " AND data @> $%d::jsonb", n)
			args = append(args, string(frag))
		case OpArrayContains:
			frag, err := json.Marshal(map[string]any{f.Field: []any{f.Value}})
			if err != nil {
				return "", nil, err
			}
			fmt.Fprintf(&b, " AND data @> $%d::jsonb", n)
			args = append(args, string(frag))
		case OpPrefix:
			prefix, ok := f.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("docstore: prefix filter on %q needs a string", f.Field)
			}
			fmt.Fprintf(&b, " AND data->>%s LIKE $%d", pq.QuoteLiteral(f.Field), n)
			args = append(args, escapeLike(prefix)+"%")
		default:
			return "", nil, fmt.Errorf("docstore: unsupported operator %q", f.Op)
		}
	}
	return b.String(), args, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrConflict
	}
	return err
}
