// Package objectstore defines the contract for storing uploaded binary
// objects (PDFs) and handing back a URL clients can fetch them from.
//
// The supabase sub-package implements it on Supabase Storage; the mock
// sub-package keeps objects in memory for tests.
package objectstore

import "context"

// Store persists binary objects.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put uploads data under key with the given content type and returns the
	// public URL of the stored object. Existing objects are not overwritten.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}
