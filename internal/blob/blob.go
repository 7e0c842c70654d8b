// Package blob stores whole JSON documents by name, on local disk or in a
// Google Cloud Storage bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Read when no document exists under the key.
var ErrNotFound = errors.New("blob not found")

// Store reads and writes whole documents.
type Store interface {
	// Read returns the document stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write replaces the document stored under key.
	Write(ctx context.Context, key string, data []byte) error

	// List returns the keys that start with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any client resources.
	Close() error
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("blob key cannot be empty")
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}

// Open returns the store named by kind: "file" rooted at dir, or "gcs"
// in bucket with credentials from the environment.
func Open(ctx context.Context, kind, dir, bucket, prefix string) (Store, error) {
	switch kind {
	case "file", "":
		s, err := NewFileStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "gcs":
		s, err := NewGCSStore(ctx, bucket, prefix, ClientOptionsFromEnv()...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", kind)
	}
}
