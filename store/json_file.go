package store

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileBackend keeps the whole store in one pretty-printed JSON file.
//
// Layout:
//
//	{
//	  "users": [ {record}, ... ],
//	  "pets":  [ ... ]
//	}
//
// Writes go to a temp file in the same directory which is synced and then
// renamed over the target, so readers never see a half-written document.
type JSONFileBackend struct {
	mu   sync.Mutex
	path string
	sum  [sha256.Size]byte // of the bytes last read or written
}

func NewJSONFileBackend(path string) (*JSONFileBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("json backend: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &JSONFileBackend{path: path}, nil
}

// Path returns the document location.
func (b *JSONFileBackend) Path() string {
	return b.path
}

func (b *JSONFileBackend) Load() (Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoDocument, b.path)
		}
		return nil, err
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.path, err)
	}
	b.sum = sha256.Sum256(data)
	return doc, nil
}

func (b *JSONFileBackend) Save(doc Document) error {
	data, err := EncodeDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := writeFile(b.path, data); err != nil {
		return err
	}
	b.sum = sha256.Sum256(data)
	return nil
}

// Changed reports whether the file on disk differs from what this backend
// last read or wrote. A missing file is not a change.
func (b *JSONFileBackend) Changed() (bool, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	sum := sha256.Sum256(data)
	b.mu.Lock()
	defer b.mu.Unlock()
	return !bytes.Equal(sum[:], b.sum[:]), nil
}

// writeFile is replaced in tests to simulate a failed write.
var writeFile = writeFileAtomic

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
