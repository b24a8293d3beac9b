package storage

import (
	"mime"
	"path/filepath"
	"strings"
)

// contentTypeForKey derives a MIME type from the key's extension.
func contentTypeForKey(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ext == ".png" {
		return ContentTypePNG
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// validKey rejects empty keys and any key that could escape its root.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return false
		}
	}
	return true
}
