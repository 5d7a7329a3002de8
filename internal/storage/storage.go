package storage

import (
	"context"
	"io"
)

// FileStorage defines the interface for object storage operations
type FileStorage interface {
	// SaveFile writes the object under key and returns its location
	SaveFile(ctx context.Context, file io.Reader, key string, contentType string) (string, error)
}
