// Package staging holds selected image files between the browser upload and
// the backend upload, so each retry can re-read the original bytes.
package staging

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("staged file not found")

type Store interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (key string, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}
