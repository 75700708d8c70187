package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memDoc struct {
	data       json.RawMessage
	createTime time.Time
	updateTime time.Time
}

// Memory is an in-process Store. Watches are refreshed synchronously after
// every write, so a writer returns only after watchers hold the new snapshot.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memDoc
	watchers    map[string]map[*Subscription]struct{}
	closed      bool
	now         func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]*memDoc),
		watchers:    make(map[string]map[*Subscription]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for record timestamps.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Create(ctx context.Context, collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	docs := m.collections[collection]
	if docs == nil {
		docs = make(map[string]*memDoc)
		m.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		m.mu.Unlock()
		return ErrConflict
	}
	if m.uniqueTaken(docs, id, doc) {
		m.mu.Unlock()
		return ErrConflict
	}
	now := m.now()
	docs[id] = &memDoc{data: raw, createTime: now, updateTime: now}
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Record{}, ErrClosed
	}
	d, ok := m.collections[collection][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return d.record(collection, id), nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any, conds ...Filter) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	docs := m.collections[collection]
	d, ok := docs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	doc, err := decodeDocument(d.data)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if !doc.matches(conds) {
		m.mu.Unlock()
		return ErrPrecondition
	}
	for k, v := range fields {
		doc[k] = normalize(v)
	}
	if m.uniqueTaken(docs, id, doc) {
		m.mu.Unlock()
		return ErrConflict
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("encode document: %w", err)
	}
	d.data = raw
	d.updateTime = m.now()
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string, conds ...Filter) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	docs := m.collections[collection]
	d, ok := docs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if len(conds) > 0 {
		doc, err := decodeDocument(d.data)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		if !doc.matches(conds) {
			m.mu.Unlock()
			return ErrPrecondition
		}
	}
	delete(docs, id)
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Record, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.queryLocked(q)
}

func (m *Memory) queryLocked(q Query) ([]Record, error) {
	var out []Record
	for id, d := range m.collections[q.Collection] {
		doc, err := decodeDocument(d.data)
		if err != nil {
			return nil, err
		}
		if doc.matches(q.Filters) {
			out = append(out, d.record(q.Collection, id))
		}
	}
	return orderRecords(out, q)
}

func (m *Memory) Watch(ctx context.Context, q Query) (*Subscription, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	sub := newSubscription(q, m.removeWatcher)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	set := m.watchers[q.Collection]
	if set == nil {
		set = make(map[*Subscription]struct{})
		m.watchers[q.Collection] = set
	}
	set[sub] = struct{}{}
	m.mu.Unlock()

	sub.refresh(m.reader(q))
	sub.closeWith(ctx)
	return sub, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var subs []*Subscription
	for _, set := range m.watchers {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

func (m *Memory) reader(q Query) func() Snapshot {
	return func() Snapshot {
		m.mu.RLock()
		defer m.mu.RUnlock()
		recs, err := m.queryLocked(q)
		return Snapshot{Records: recs, Err: err}
	}
}

func (m *Memory) notify(collection string) {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.watchers[collection]))
	for sub := range m.watchers[collection] {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		sub.refresh(m.reader(sub.Query()))
	}
}

func (m *Memory) removeWatcher(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.watchers[sub.Query().Collection]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(m.watchers, sub.Query().Collection)
		}
	}
}

// uniqueTaken reports whether another document of docs holds doc's unique key.
func (m *Memory) uniqueTaken(docs map[string]*memDoc, id string, doc document) bool {
	key, _ := doc[UniqueKeyField].(string)
	if key == "" {
		return false
	}
	for otherID, other := range docs {
		if otherID == id {
			continue
		}
		otherDoc, err := decodeDocument(other.data)
		if err != nil {
			continue
		}
		if otherKey, _ := otherDoc[UniqueKeyField].(string); otherKey == key {
			return true
		}
	}
	return false
}

func (d *memDoc) record(collection, id string) Record {
	data := make(json.RawMessage, len(d.data))
	copy(data, d.data)
	return Record{
		ID:         id,
		Collection: collection,
		Data:       data,
		CreateTime: d.createTime,
		UpdateTime: d.updateTime,
	}
}
