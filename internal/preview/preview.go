// Package preview turns selected image files into data URLs that can be shown
// before the image is uploaded.
package preview

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// MaxSize bounds a single preview source.
const MaxSize = 20 * 1024 * 1024

var ErrUnsupportedType = errors.New("unsupported image format")

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// DetectImage returns the MIME type of data and whether it is an accepted image
// format.
func DetectImage(data []byte) (string, bool) {
	mt := mimetype.Detect(data)
	for _, allowed := range allowedImageTypes {
		if mt.Is(allowed) {
			return allowed, true
		}
	}
	return "", false
}

// DataURL reads r fully and encodes it as data:<mime>;base64,<payload>.
func DataURL(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > MaxSize {
		return "", fmt.Errorf("image exceeds %d bytes", MaxSize)
	}
	return FromBytes(data)
}

func FromBytes(data []byte) (string, error) {
	mime, ok := DetectImage(data)
	if !ok {
		return "", ErrUnsupportedType
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
