package coffre

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// StoredName derives the unique on-disk name for an upload:
// {base}-{unix millis}{ext}. The timestamp keeps concurrent uploads of the
// same file name from colliding; the flat uploads directory holds nothing
// but names of this shape. The base is sanitized so the result always
// satisfies IsValidStoredName regardless of what the client sent.
func StoredName(originalName string, now time.Time) string {
	ext := filepath.Ext(originalName)
	base := strings.TrimSuffix(filepath.Base(originalName), ext)
	base = sanitizeBase(base)
	if base == "" {
		base = "file"
	}
	return base + "-" + strconv.FormatInt(now.UnixMilli(), 10) + sanitizeBase(ext)
}

func sanitizeBase(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 || r < 0x20 || r == 0x7f || unicode.IsSpace(r) {
			return '_'
		}
		switch r {
		case '/', '\\', '?', '#', '~':
			return '_'
		}
		return r
	}, s)
}

// IsValidStoredName validates a blob name before it is handed to the
// store. Names are flat: no separators, no traversal, no control
// characters, valid UTF-8.
func IsValidStoredName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}

	if strings.ContainsAny(name, `/\?#~`) {
		return false
	}

	if !utf8.ValidString(name) {
		return false
	}

	for _, r := range name {
		if r == 0 || r < 0x20 || r == 0x7f || unicode.IsSpace(r) {
			return false
		}
	}

	return true
}
