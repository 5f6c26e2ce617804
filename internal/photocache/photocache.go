// Package photocache keeps one local image file per capture session while a
// draft is pending. The workflow deletes files on every terminal path; the
// periodic sweep only mops up after crashes.
package photocache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Cache struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid cache directory: %w", err)
	}
	return &Cache{dir: abs, logger: logger}, nil
}

// Save writes one draft image and returns its absolute path. Names carry the
// session id plus a random suffix so concurrent sessions never collide.
func (c *Cache) Save(sessionID, mimeType string, data []byte) (string, error) {
	name := fmt.Sprintf("draft_%s_%s%s", sanitize(sessionID), uuid.NewString(), extForMIME(mimeType))
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write draft image: %w", err)
	}
	return path, nil
}

// Load reads a cached image back, refusing paths outside the cache
// directory.
func (c *Cache) Load(path string) ([]byte, error) {
	resolved, err := c.contained(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read draft image: %w", err)
	}
	return data, nil
}

// Remove deletes one cached image. A missing file is not an error; a path
// outside the cache directory is.
func (c *Cache) Remove(path string) error {
	if path == "" {
		return nil
	}
	resolved, err := c.contained(path)
	if err != nil {
		return err
	}
	if err := os.Remove(resolved); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove draft image: %w", err)
	}
	return nil
}

// Sweep removes cached images older than maxAge and reports how many went.
func (c *Cache) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			c.logger.Warn("failed to sweep cached image", "name", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// contained resolves path and rejects anything escaping the cache directory.
func (c *Cache) contained(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if !strings.HasPrefix(abs, c.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes cache directory")
	}
	return abs, nil
}

// sanitize keeps session ids filesystem-safe.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}

func extForMIME(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
