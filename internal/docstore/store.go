// Package docstore is a small document database contract: named collections of
// JSON documents with filtered queries and live watches that emit the full
// matching set on every change.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("docstore: document not found")
	ErrConflict     = errors.New("docstore: document conflicts with an existing one")
	ErrPrecondition = errors.New("docstore: precondition failed")
	ErrClosed       = errors.New("docstore: store closed")
)

// UniqueKeyField is reserved: within a collection at most one document may hold
// a given non-empty value in this field.
const UniqueKeyField = "uniqueKey"

// IDField is the document field every record carries its id in.
const IDField = "id"

// Record is a stored document.
type Record struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Data       json.RawMessage `json:"data"`
	CreateTime time.Time       `json:"createTime"`
	UpdateTime time.Time       `json:"updateTime"`
}

// Decode unmarshals the document body into v.
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

type Op string

const (
	OpEq            Op = "=="
	OpArrayContains Op = "array-contains"
	OpPrefix        Op = "prefix"
)

// Filter is one predicate on a top-level document field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents of one collection. Results are ordered by OrderBy
// (documents missing the field sort last in both directions) and cut to Limit
// when Limit > 0.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is implemented by Memory and Postgres.
type Store interface {
	// Create stores data under id. It fails with ErrConflict when the id or the
	// document's unique key is already taken; the existing document is untouched.
	Create(ctx context.Context, collection, id string, data any) error
	Get(ctx context.Context, collection, id string) (Record, error)
	// Update merges fields into the document. When conds are given they must all
	// hold on the current document or ErrPrecondition is returned.
	Update(ctx context.Context, collection, id string, fields map[string]any, conds ...Filter) error
	Delete(ctx context.Context, collection, id string, conds ...Filter) error
	Query(ctx context.Context, q Query) ([]Record, error)
	// Watch emits the current result of q and a new one after every change to
	// the collection. The subscription ends when ctx is done or Close is called.
	Watch(ctx context.Context, q Query) (*Subscription, error)
	Close() error
}
