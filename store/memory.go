package store

import (
	"fmt"
	"sync"
)

// MemoryBackend keeps the encoded document in memory. Data is lost on
// restart. Safe for concurrent use.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load() (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, fmt.Errorf("%w: memory backend is empty", ErrNoDocument)
	}
	return DecodeDocument(m.data)
}

// Save stores an encoded copy, so later changes to doc's records are not seen.
func (m *MemoryBackend) Save(doc Document) error {
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
	return nil
}

// Bytes returns the last saved document as written.
func (m *MemoryBackend) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}
