// Package local implements a file-backed unsupported-links log.
package local

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config captures the parameters for the unsupported-links file.
type Config struct {
	// Path is the file that receives one URL per line.
	Path string `mapstructure:"path" yaml:"path"`
	// Truncate clears the file when the log is opened.
	Truncate bool `mapstructure:"truncate" yaml:"truncate"`
}

// UnsupportedLog appends unsupported URLs to a text file.
type UnsupportedLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// New opens (and creates if needed) the unsupported-links file.
func New(cfg Config) (*UnsupportedLog, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("unsupported log path is required")
	}
	dir := filepath.Dir(cfg.Path)
	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat log directory: %w", err)
		}
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("log directory path is not a directory")
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if cfg.Truncate {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(cfg.Path, flags, 0o600) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open unsupported log: %w", err)
	}
	return &UnsupportedLog{file: file, path: cfg.Path}, nil
}

// Path returns the file being written.
func (l *UnsupportedLog) Path() string {
	return l.path
}

// Record writes u followed by a newline. The parent title is not persisted.
func (l *UnsupportedLog) Record(ctx context.Context, u *url.URL, _ string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("record unsupported url: %w", err)
	}
	if u == nil {
		return fmt.Errorf("url is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	if _, err := l.file.WriteString(u.String() + "\n"); err != nil {
		return fmt.Errorf("write unsupported url: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (l *UnsupportedLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("close unsupported log: %w", err)
	}
	return nil
}
