// Package sniff determines a file's true content type by inspecting its
// bytes. Client-declared Content-Type headers and file extensions are
// attacker-controlled and are never consulted; only the magic bytes at the
// start of the content count.
package sniff

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// sniffLen is how many leading bytes content detection looks at, matching
// what http.DetectContentType considers.
const sniffLen = 512

// Detector sniffs content types from raw bytes.
type Detector struct{}

// New returns a content type Detector.
func New() *Detector {
	return &Detector{}
}

// Detect reads up to the first 512 bytes of r and returns the detected
// MIME type with parameters stripped, e.g. "text/plain" rather than
// "text/plain; charset=utf-8". An unrecognizable but readable stream
// detects as application/octet-stream; only a read failure is an error.
func (d *Detector) Detect(r io.Reader) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("sniff content: %w", err)
	}

	detected := http.DetectContentType(buf[:n])

	mediaType, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return "", fmt.Errorf("sniff content: parse detected type %q: %w", detected, err)
	}

	return mediaType, nil
}
