// Package supabase implements objectstore.Store on Supabase Storage using
// github.com/supabase-community/storage-go.
//
// Objects are written into a single bucket. The returned URL is the bucket's
// public object URL, so the bucket must be configured as public for clients
// to download files.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"github.com/MrWong99/agora/pkg/objectstore"
)

// DefaultBucket is the bucket uploaded PDFs are written to.
const DefaultBucket = "pdfs"

// Compile-time interface assertion.
var _ objectstore.Store = (*Store)(nil)

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithBucket overrides the target bucket. Defaults to [DefaultBucket].
func WithBucket(bucket string) Option {
	return func(s *Store) {
		if bucket != "" {
			s.bucket = bucket
		}
	}
}

// Store uploads objects to Supabase Storage.
type Store struct {
	projectURL string
	bucket     string
	client     *storage.Client
}

// New creates a Store for the Supabase project at projectURL
// (e.g. "https://xyz.supabase.co") authenticated with apiKey.
func New(projectURL, apiKey string, opts ...Option) (*Store, error) {
	if projectURL == "" {
		return nil, errors.New("supabase: project URL must not be empty")
	}
	if apiKey == "" {
		return nil, errors.New("supabase: api key must not be empty")
	}
	projectURL = strings.TrimRight(projectURL, "/")
	s := &Store{
		projectURL: projectURL,
		bucket:     DefaultBucket,
	}
	for _, o := range opts {
		o(s)
	}
	s.client = storage.NewClient(projectURL+"/storage/v1", apiKey, nil)
	return s, nil
}

// Put implements [objectstore.Store]. The storage client does not accept a
// context, so ctx is only checked before the upload starts.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("supabase: put %q: %w", key, err)
	}
	opts := storage.FileOptions{ContentType: &contentType}
	if _, err := s.client.UploadFile(s.bucket, key, bytes.NewReader(data), opts); err != nil {
		return "", fmt.Errorf("supabase: put %q: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// PublicURL returns the public download URL of key in the configured bucket.
func (s *Store) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.projectURL, s.bucket, url.PathEscape(key))
}
