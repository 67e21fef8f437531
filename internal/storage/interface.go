package storage

import (
	"context"
	"io"
)

// Archive keeps the raw payloads of accepted notifications for audit and
// manual reconciliation of partial postings.
type Archive interface {
	Upload(ctx context.Context, key string, data io.Reader) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}
