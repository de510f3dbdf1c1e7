package links

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/scraper"
)

// Submitter accepts work items for dispatch. scraper.Session satisfies it.
type Submitter interface {
	Submit(ctx context.Context, item scraper.WorkItem) error
}

// Loader reads the input file and command-line links into the intake queue.
type Loader struct {
	sink   Submitter
	logger *zap.Logger
}

// NewLoader constructs a Loader.
func NewLoader(sink Submitter, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{sink: sink, logger: logger}
}

// Load extracts links from inputFile, appends extra, and submits each as a
// work item with an empty parent title. A missing input file is not fatal.
// It returns the number of submitted items.
func (l *Loader) Load(ctx context.Context, inputFile string, extra []string) (int, error) {
	found, err := l.readFile(inputFile)
	if err != nil {
		return 0, err
	}
	for _, raw := range extra {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, ok := parse(raw)
		if !ok {
			l.logger.Debug("dropping unparsable link argument", zap.String("url", raw))
			continue
		}
		found = append(found, u)
	}

	found = nonEmpty(found)
	if len(found) == 0 {
		l.logger.Info("No valid links found.")
		return 0, nil
	}

	for i, u := range found {
		if err := l.sink.Submit(ctx, scraper.WorkItem{URL: u}); err != nil {
			return i, fmt.Errorf("load links: %w", err)
		}
	}
	l.logger.Info("links loaded", zap.Int("count", len(found)))
	return len(found), nil
}

func (l *Loader) readFile(path string) ([]*url.URL, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("input file not found", zap.String("path", path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var out []*url.URL
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			out = append(out, Extract(strings.TrimRight(line, "\r\n"))...)
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
	}
}

func nonEmpty(in []*url.URL) []*url.URL {
	out := in[:0]
	for _, u := range in {
		if u == nil || u.String() == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}
