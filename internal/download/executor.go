package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/scraper"
)

// ManifestEntry is one JSON line written by ManifestExecutor.
type ManifestEntry struct {
	RunID            string    `json:"run_id"`
	Capability       string    `json:"capability"`
	URL              string    `json:"url"`
	Referer          string    `json:"referer,omitempty"`
	DownloadFolder   string    `json:"download_folder"`
	Filename         string    `json:"filename"`
	Ext              string    `json:"ext"`
	OriginalFilename string    `json:"original_filename"`
	QueuedAt         time.Time `json:"queued_at"`
}

// ManifestExecutor records every media item as a JSON line instead of
// transferring bytes, leaving the transfer to an external downloader.
type ManifestExecutor struct {
	mu    sync.Mutex
	w     io.Writer
	c     io.Closer
	runID uuid.UUID
	now   func() time.Time
}

// NewManifestExecutor writes to w. The caller keeps ownership of w.
func NewManifestExecutor(w io.Writer, runID uuid.UUID) *ManifestExecutor {
	return &ManifestExecutor{w: w, runID: runID, now: func() time.Time { return time.Now().UTC() }}
}

// OpenManifest appends to the manifest file at path, creating parent
// directories as needed.
func OpenManifest(path string, runID uuid.UUID) (*ManifestExecutor, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create manifest dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	exec := NewManifestExecutor(f, runID)
	exec.c = f
	return exec, nil
}

// Execute appends the item to the manifest.
func (e *ManifestExecutor) Execute(_ context.Context, capability string, item scraper.MediaItem) error {
	entry := ManifestEntry{
		RunID:            e.runID.String(),
		Capability:       capability,
		URL:              urlString(item.URL),
		Referer:          urlString(item.Referer),
		DownloadFolder:   item.DownloadFolder,
		Filename:         item.Filename,
		Ext:              item.Ext,
		OriginalFilename: item.OriginalFilename,
		QueuedAt:         e.now(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode manifest entry: %w", err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("write manifest entry: %w", err)
	}
	return nil
}

// Close closes the manifest file when the executor opened it.
func (e *ManifestExecutor) Close() error {
	if e.c == nil {
		return nil
	}
	if err := e.c.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return nil
}

// LogExecutor logs each media item and performs no transfer.
type LogExecutor struct {
	logger *zap.Logger
}

// NewLogExecutor builds a LogExecutor.
func NewLogExecutor(logger *zap.Logger) *LogExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExecutor{logger: logger}
}

// Execute implements Executor.
func (e *LogExecutor) Execute(_ context.Context, capability string, item scraper.MediaItem) error {
	e.logger.Info("media queued",
		zap.String("capability", capability),
		zap.String("url", urlString(item.URL)),
		zap.String("folder", item.DownloadFolder),
		zap.String("filename", item.Filename),
	)
	return nil
}

func urlString(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.String()
}
