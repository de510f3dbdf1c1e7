// Package scraper defines the core types shared by the link mapper: work items,
// media references, queue and handler contracts, and the per-run Session.
package scraper

import (
	"context"
	"net/url"
)

// NoCrawler is the download capability used for direct file links that no
// domain handler claimed.
const NoCrawler = "no_crawler"

// LooseFilesFolder is the folder under the downloads directory that receives
// direct file links.
const LooseFilesFolder = "Loose Files"

// DomainKey identifies one row of the routing table.
type DomainKey string

// WorkItem is a URL awaiting dispatch, plus the title of the page it was found on.
type WorkItem struct {
	URL         *url.URL
	ParentTitle string
}

// MediaItem describes one file to hand to the download subsystem.
type MediaItem struct {
	URL              *url.URL
	Referer          *url.URL
	DownloadFolder   string
	Filename         string
	Ext              string
	OriginalFilename string
}

// Queue is the FIFO contract shared by the intake, handler and download queues.
type Queue[T any] interface {
	Enqueue(ctx context.Context, item T) error
	Dequeue(ctx context.Context) (T, error)
	TryDequeue() (T, bool)
	Ready() <-chan struct{}
	Len() int
}

// Handler is a per-domain-family extractor.
//
// Handlers are constructed on the first routed URL, started once, and run
// their loop in a goroutine for the rest of the process.
type Handler interface {
	Name() string
	Startup(ctx context.Context) error
	RunLoop(ctx context.Context)
	// Complete reports whether the handler has no queued or in-flight work.
	Complete() bool
	Enqueue(ctx context.Context, item WorkItem) error
	Len() int
}

// DownloadRegistry hands out the queue for a download capability, creating
// it on first use.
type DownloadRegistry interface {
	Register(ctx context.Context, name string) (Queue[MediaItem], error)
}

// UnsupportedLog records URLs that nothing could handle.
type UnsupportedLog interface {
	Record(ctx context.Context, u *url.URL, parentTitle string) error
}

// Delegate forwards unsupported URLs to an external application.
type Delegate interface {
	Enabled() bool
	Ready() bool
	Setup(ctx context.Context) error
	Send(ctx context.Context, u *url.URL, parentTitle string) error
	Close() error
}
