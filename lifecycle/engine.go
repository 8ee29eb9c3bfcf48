// Package lifecycle implements the record operations (list, get, create,
// amend, soft-delete, restore) on top of a store.Store.
//
// Every operation runs under one mutex and, when it mutates, flushes the
// whole store before returning. A failed flush undoes the in-memory change,
// so a caller never observes state that is not on disk.
package lifecycle

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/stevemurr/simple-record-server/schema"
	"github.com/stevemurr/simple-record-server/store"
)

// RestoredMessage accompanies a restored record.
const RestoredMessage = "Record restored"

var createSchema = map[string]any{
	"type":     "object",
	"required": []any{store.FieldFirst, store.FieldLast},
	"properties": map[string]any{
		store.FieldFirst: map[string]any{"type": "string", "minLength": 1},
		store.FieldLast:  map[string]any{"type": "string", "minLength": 1},
	},
}

// amendSchema leaves the open part of a record alone but keeps identity and
// lifecycle metadata out of reach of a patch.
var amendSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		store.FieldID:              map[string]any{"readOnly": true},
		store.FieldFirst:           map[string]any{"type": "string"},
		store.FieldLast:            map[string]any{"type": "string"},
		store.FieldIsDeleted:       map[string]any{"readOnly": true},
		store.FieldIsPatched:       map[string]any{"readOnly": true},
		store.FieldGetCount:        map[string]any{"readOnly": true},
		store.FieldLastGetDate:     map[string]any{"readOnly": true},
		store.FieldLastPatchDate:   map[string]any{"readOnly": true},
		store.FieldLastDeletedDate: map[string]any{"readOnly": true},
	},
}

// RestoreResult is returned by Restore.
type RestoreResult struct {
	Message string        `json:"message"`
	Item    *store.Record `json:"item"`
}

// Engine runs record operations against a store. Safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	store  *store.Store
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New returns an Engine over s. s must already be loaded.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) timestamp() *time.Time {
	t := e.now().UTC().Truncate(time.Millisecond)
	return &t
}

// List returns the active records of a collection in order.
func (e *Engine) List(collection string) ([]*store.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.store.Get(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	out := make([]*store.Record, 0, len(c.Records))
	for _, r := range c.Records {
		if !r.IsDeleted {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Get returns an active record and counts the read.
func (e *Engine) Get(collection, id string) (*store.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.find(collection, id, false)
	if err != nil {
		return nil, err
	}
	now := e.timestamp()
	return e.commit("get", collection, rec, func(r *store.Record) {
		r.GetCount++
		r.LastGetDate = now
	})
}

// Create appends a new record to the collection, creating the collection if
// it does not exist yet. payload must carry non-empty first and last strings;
// any other keys are ignored.
func (e *Engine) Create(collection string, payload map[string]any) (*store.Record, error) {
	if err := schema.Validate(createSchema, payload); err != nil {
		return nil, &ValidationError{Msg: "Missing first or last name: " + err.Error()}
	}
	first, _ := payload[store.FieldFirst].(string)
	last, _ := payload[store.FieldLast].(string)

	e.mu.Lock()
	defer e.mu.Unlock()

	c, created := e.store.Ensure(collection)
	rec := &store.Record{
		ID:    store.NextID(c),
		First: first,
		Last:  last,
	}
	c.Records = append(c.Records, rec)

	if err := e.store.Flush(); err != nil {
		c.Records = c.Records[:len(c.Records)-1]
		if created {
			e.store.Drop(collection)
		}
		e.logger.Error("flush failed", "op", "create", "collection", collection, "error", err)
		return nil, err
	}
	e.logger.Debug("record committed", "op", "create", "collection", collection, "id", rec.ID)
	return rec.Clone(), nil
}

// Amend merges fields into an active record and marks it patched.
func (e *Engine) Amend(collection, id string, fields map[string]any) (*store.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.find(collection, id, false)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(amendSchema, fields); err != nil {
		return nil, &ValidationError{Msg: "Invalid patch: " + err.Error()}
	}
	now := e.timestamp()
	return e.commit("amend", collection, rec, func(r *store.Record) {
		r.Merge(fields)
		r.IsPatched = true
		r.LastPatchDate = now
	})
}

// SoftDelete marks an active record deleted. The record stays in the store.
func (e *Engine) SoftDelete(collection, id string) (*store.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.find(collection, id, false)
	if err != nil {
		return nil, err
	}
	now := e.timestamp()
	return e.commit("delete", collection, rec, func(r *store.Record) {
		r.IsDeleted = true
		r.LastDeletedDate = now
	})
}

// Restore brings a soft-deleted record back.
func (e *Engine) Restore(collection, id string) (*RestoreResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.find(collection, id, true)
	if err != nil {
		return nil, err
	}
	if !rec.IsDeleted {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotDeleted, collection, id)
	}
	now := e.timestamp()
	out, err := e.commit("restore", collection, rec, func(r *store.Record) {
		r.IsDeleted = false
		r.LastPatchDate = now
	})
	if err != nil {
		return nil, err
	}
	return &RestoreResult{Message: RestoredMessage, Item: out}, nil
}

// Collections returns the sorted collection names.
func (e *Engine) Collections() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Collections()
}

// Reload replaces the in-memory state with the backing document.
func (e *Engine) Reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Reload(); err != nil {
		return err
	}
	e.logger.Info("store reloaded", "collections", len(e.store.Collections()))
	return nil
}

// find looks a record up by the decimal form of its id, so "01" never
// matches id 1. Deleted records are skipped unless includeDeleted is set.
func (e *Engine) find(collection, id string, includeDeleted bool) (*store.Record, error) {
	c, ok := e.store.Get(collection)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}
	for _, r := range c.Records {
		if strconv.Itoa(r.ID) != id {
			continue
		}
		if r.IsDeleted && !includeDeleted {
			break
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, collection, id)
}

// commit applies fn to rec and flushes. On flush failure rec is put back the
// way it was.
func (e *Engine) commit(op, collection string, rec *store.Record, fn func(*store.Record)) (*store.Record, error) {
	prev := rec.Clone()
	fn(rec)
	if err := e.store.Flush(); err != nil {
		*rec = *prev
		e.logger.Error("flush failed", "op", op, "collection", collection, "id", rec.ID, "error", err)
		return nil, err
	}
	e.logger.Debug("record committed", "op", op, "collection", collection, "id", rec.ID)
	return rec.Clone(), nil
}
