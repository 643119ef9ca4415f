// Package mock provides an in-memory objectstore.Store for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/agora/pkg/objectstore"
)

// Object is one stored upload.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// Store is a mock implementation of objectstore.Store.
type Store struct {
	mu sync.Mutex

	// BaseURL prefixes returned URLs. Defaults to "https://objects.test".
	BaseURL string

	// PutErr, if non-nil, is returned from Put and nothing is stored.
	PutErr error

	// Objects records every successful Put in order.
	Objects []Object
}

// Put implements objectstore.Store.
func (s *Store) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return "", s.PutErr
	}
	s.Objects = append(s.Objects, Object{Key: key, ContentType: contentType, Data: append([]byte(nil), data...)})
	base := s.BaseURL
	if base == "" {
		base = "https://objects.test"
	}
	return fmt.Sprintf("%s/%s", base, key), nil
}

// Count returns the number of stored objects.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Objects)
}

var _ objectstore.Store = (*Store)(nil)
