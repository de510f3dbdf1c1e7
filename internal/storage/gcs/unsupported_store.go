// Package gcs uploads the unsupported-links log to a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const (
	defaultPrefix        = "unsupported"
	defaultUploadTimeout = 30 * time.Second
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("gcs unsupported store closed")

// Config captures the bucket and object layout.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	// Prefix is prepended to the per-run object name.
	Prefix        string        `mapstructure:"prefix" yaml:"prefix"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout" yaml:"upload_timeout"`
}

// UnsupportedStore collects unsupported URLs for one run and writes them to a
// single object, one URL per line. The object is rewritten on every Flush.
type UnsupportedStore struct {
	client  *storage.Client
	owned   bool
	bucket  string
	object  string
	timeout time.Duration

	mu     sync.Mutex
	buf    bytes.Buffer
	count  int
	closed bool
}

// New creates a client and fails fast when the bucket cannot be read.
func New(ctx context.Context, cfg Config, runID uuid.UUID, opts ...option.ClientOption) (*UnsupportedStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("get bucket %q attributes: %w (close client: %v)", cfg.Bucket, err, closeErr)
		}
		return nil, fmt.Errorf("get bucket %q attributes: %w", cfg.Bucket, err)
	}
	store, err := NewWithClient(client, cfg, runID)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client *storage.Client, cfg Config, runID uuid.UUID) (*UnsupportedStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	return &UnsupportedStore{
		client:  client,
		bucket:  cfg.Bucket,
		object:  path.Join(prefix, runID.String()+".txt"),
		timeout: timeout,
	}, nil
}

// URI returns the gs:// location of the run's object.
func (s *UnsupportedStore) URI() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Record buffers one URL. Nothing is uploaded until Flush or Close.
func (s *UnsupportedStore) Record(_ context.Context, u *url.URL, _ string) error {
	if u == nil {
		return fmt.Errorf("url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.buf.WriteString(u.String())
	s.buf.WriteByte('\n')
	s.count++
	return nil
}

// Len reports how many URLs have been recorded.
func (s *UnsupportedStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Flush writes everything recorded so far. An empty log uploads nothing.
func (s *UnsupportedStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	data := bytes.Clone(s.buf.Bytes())
	s.mu.Unlock()
	if len(data) == 0 {
		return nil
	}

	writer := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	writer.ContentType = "text/plain; charset=utf-8"
	if _, err := writer.Write(data); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("write %s: %w (close writer: %v)", s.URI(), err, closeErr)
		}
		return fmt.Errorf("write %s: %w", s.URI(), err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", s.URI(), err)
	}
	return nil
}

// Close uploads the log and releases the client when the store created it.
// Later calls are no-ops.
func (s *UnsupportedStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := s.Flush(ctx)
	if s.owned {
		if closeErr := s.client.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close gcs client: %w", closeErr))
		}
	}
	return err
}
