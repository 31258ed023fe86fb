// Package storage keeps dated copies of portal export documents in object
// storage. MinIO and Google Cloud Storage backends are supported.
package storage

import (
	"context"
	"io"
)

// ObjectStore defines the object operations shared by both backends.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStore backend behind a stable API.
type Storage struct {
	backend ObjectStore
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStore) *Storage {
	return &Storage{backend: backend}
}

// EnsureBucket ensures the archive bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put stores one export document under key.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Open reads back a stored export document.
func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Open(ctx, key)
}

// Remove deletes a stored export document.
func (s *Storage) Remove(ctx context.Context, key string) error {
	return s.backend.Remove(ctx, key)
}

// Bucket returns the archive bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}
