package store

import (
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory implements a simple in-memory version of a store. It is intended
// mainly for testing: bag fixtures are written into it as zip files and then
// read back through Open.
type Memory struct {
	m     sync.RWMutex
	store map[string][]byte
}

var (
	// ensure Memory satisfies the Store interface
	_ Store = &Memory{}
)

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{store: make(map[string][]byte)}
}

// ListPrefix returns all the keys which begin with the given prefix, in
// sorted order.
func (ms *Memory) ListPrefix(prefix string) ([]string, error) {
	var result []string
	ms.m.RLock()
	for k := range ms.store {
		if strings.HasPrefix(k, prefix) {
			result = append(result, k)
		}
	}
	ms.m.RUnlock()
	sort.Strings(result)
	return result, nil
}

// Open returns a ReadAtCloser and the size of the given key. The value is
// not copied, since values are never changed once stored.
func (ms *Memory) Open(key string) (ReadAtCloser, int64, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, ErrNotExist
	}
	return memReader(v), int64(len(v)), nil
}

// Bytes returns the content stored under key, or nil.
func (ms *Memory) Bytes(key string) []byte {
	ms.m.RLock()
	defer ms.m.RUnlock()
	return ms.store[key]
}

type memReader []byte

func (r memReader) Close() error { return nil }

func (r memReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(r)) {
		return 0, io.EOF
	}
	n := copy(p, r[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Create makes a new entry in the store, and returns a writer to save data
// into it. The entry becomes visible when the writer is closed.
func (ms *Memory) Create(key string) (io.WriteCloser, error) {
	ms.m.RLock()
	_, ok := ms.store[key]
	ms.m.RUnlock()
	if ok {
		return nil, ErrKeyExists
	}
	return &memWriter{ms: ms, key: key}, nil
}

type memWriter struct {
	ms  *Memory
	key string
	b   []byte
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func (w *memWriter) Close() error {
	w.ms.m.Lock()
	defer w.ms.m.Unlock()
	if _, ok := w.ms.store[w.key]; ok {
		return ErrKeyExists
	}
	w.ms.store[w.key] = w.b
	return nil
}

// Delete the given key from the store. It is not an error if the item does
// not exist in the store.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.store, key)
	ms.m.Unlock()
	return nil
}
