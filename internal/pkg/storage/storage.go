package storage

import (
	"context"
	"io"
)

// Storage is the receipt archive backend.
type Storage interface {
	// Put stores reader at key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Exists reports whether key is already stored.
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds S3-compatible connection settings.
type Config struct {
	Endpoint  string // empty means AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}
