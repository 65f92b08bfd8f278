package blob

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory implements Store backed by process memory.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]Object
}

// NewMemory returns an empty in-memory blob store.
func NewMemory() *Memory { return &Memory{objs: make(map[string]Object)} }

// Driver returns the blob driver identifier.
func (s *Memory) Driver() Driver { return DriverMemory }

// Put stores a copy of data under a fresh id.
func (s *Memory) Put(_ context.Context, data []byte, opts PutOptions) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[id] = Object{
		ID:          id,
		Filename:    opts.Filename,
		ContentType: contentTypeOrDefault(opts.ContentType),
		Data:        append([]byte(nil), data...),
	}
	return id, nil
}

// Get returns a copy of the stored object.
func (s *Memory) Get(_ context.Context, id string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

// Delete removes the object if present.
func (s *Memory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objs, id)
	return nil
}

// Len reports how many objects are stored.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}
