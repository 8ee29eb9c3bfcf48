// Package store holds every record collection in memory and persists the
// whole set as one document through a pluggable Backend.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrStorageIO wraps every failure to read or write the backing document.
	ErrStorageIO = errors.New("storage i/o error")

	// ErrNoDocument is returned by a Backend whose document has never been written.
	ErrNoDocument = errors.New("backing document does not exist")
)

// Document is the persisted form of a store: collection name -> records.
type Document map[string][]*Record

// Backend is the persistence port of a Store. Save must replace the previous
// document atomically: after a failed Save the old document is still intact.
type Backend interface {
	// Load returns the stored document, or an error wrapping ErrNoDocument.
	Load() (Document, error)

	// Save replaces the stored document.
	Save(doc Document) error
}

// Collection is a named, ordered list of records.
type Collection struct {
	Name    string
	Records []*Record
}

// Store is the in-memory view of all collections. It is not safe for
// concurrent use; the lifecycle engine serializes every access.
type Store struct {
	backend         Backend
	createIfMissing bool
	collections     map[string]*Collection
}

// Option configures a Store.
type Option func(*Store)

// WithCreateIfMissing makes Load start from an empty store, and write it,
// when the backend has no document yet.
func WithCreateIfMissing(create bool) Option {
	return func(s *Store) { s.createIfMissing = create }
}

// New returns an empty Store bound to backend. Call Load before use.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		collections: make(map[string]*Collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory state with the backend's document.
func (s *Store) Load() error {
	doc, err := s.backend.Load()
	if errors.Is(err, ErrNoDocument) && s.createIfMissing {
		s.collections = make(map[string]*Collection)
		return s.Flush()
	}
	if err != nil {
		return fmt.Errorf("%w: load: %w", ErrStorageIO, err)
	}
	s.replace(doc)
	return nil
}

// Reload re-reads the backend's document. Unlike Load it never falls back to
// an empty store: on any error the current state is kept.
func (s *Store) Reload() error {
	doc, err := s.backend.Load()
	if err != nil {
		return fmt.Errorf("%w: reload: %w", ErrStorageIO, err)
	}
	s.replace(doc)
	return nil
}

func (s *Store) replace(doc Document) {
	collections := make(map[string]*Collection, len(doc))
	for name, records := range doc {
		collections[name] = &Collection{Name: name, Records: records}
	}
	s.collections = collections
}

// Get returns the named collection.
func (s *Store) Get(name string) (*Collection, bool) {
	c, ok := s.collections[name]
	return c, ok
}

// Ensure returns the named collection, creating an empty one if needed.
// created reports whether it did.
func (s *Store) Ensure(name string) (c *Collection, created bool) {
	if c, ok := s.collections[name]; ok {
		return c, false
	}
	c = &Collection{Name: name, Records: []*Record{}}
	s.collections[name] = c
	return c, true
}

// Drop removes a collection. It only exists to undo an Ensure whose
// mutation could not be flushed.
func (s *Store) Drop(name string) {
	delete(s.collections, name)
}

// Collections returns the sorted collection names.
func (s *Store) Collections() []string {
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the current state as a Document. Records are shared with
// the store, so the result must be consumed before the next mutation.
func (s *Store) Snapshot() Document {
	doc := make(Document, len(s.collections))
	for name, c := range s.collections {
		records := c.Records
		if records == nil {
			records = []*Record{}
		}
		doc[name] = records
	}
	return doc
}

// Flush writes the whole store through the backend.
func (s *Store) Flush() error {
	if err := s.backend.Save(s.Snapshot()); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrStorageIO, err)
	}
	return nil
}

// NextID returns one more than the highest id in c, or 1 when c is empty.
// The id is not reserved.
func NextID(c *Collection) int {
	max := 0
	for _, r := range c.Records {
		if r.ID > max {
			max = r.ID
		}
	}
	return max + 1
}

// EncodeDocument renders doc as two-space indented JSON with a trailing newline.
func EncodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// DecodeDocument parses and checks a document. Ids must be positive and
// unique within each collection.
func DecodeDocument(data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("document is empty")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed document: %w", err)
	}
	if doc == nil {
		return nil, errors.New("malformed document: top level must be an object")
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func checkDocument(doc Document) error {
	for name, records := range doc {
		seen := make(map[int]bool, len(records))
		for i, r := range records {
			if r == nil {
				return fmt.Errorf("malformed document: %s[%d] is null", name, i)
			}
			if seen[r.ID] {
				return fmt.Errorf("malformed document: duplicate id %d in %s", r.ID, name)
			}
			seen[r.ID] = true
		}
		if records == nil {
			doc[name] = []*Record{}
		}
	}
	return nil
}
