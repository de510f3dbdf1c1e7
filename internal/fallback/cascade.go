// Package fallback decides what happens to URLs no domain handler claims:
// direct file download, external delegation or the unsupported-links log.
package fallback

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/fileinfo"
	"github.com/JakeFAU/linkmapper/internal/progress"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

// Outcome reports which branch of the cascade handled an item.
type Outcome int

// Cascade outcomes, in the order they are tried.
const (
	DirectFile Outcome = iota + 1
	Delegated
	Unsupported
)

func (o Outcome) String() string {
	switch o {
	case DirectFile:
		return "direct_file"
	case Delegated:
		return "delegated"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Cascade applies the fallback branches in order.
type Cascade struct {
	session     *scraper.Session
	delegate    scraper.Delegate
	unsupported scraper.UnsupportedLog
	logger      *zap.Logger
}

// New builds a Cascade. delegate may be nil.
func New(session *scraper.Session, delegate scraper.Delegate, unsupported scraper.UnsupportedLog) *Cascade {
	return &Cascade{
		session:     session,
		delegate:    delegate,
		unsupported: unsupported,
		logger:      session.Logger.Named("fallback"),
	}
}

// Handle routes one unclaimed item. It never returns an error: every failure
// degrades to the next branch and ends in the unsupported log.
func (c *Cascade) Handle(ctx context.Context, item scraper.WorkItem) Outcome {
	if c.direct(ctx, item) {
		return DirectFile
	}
	if c.delegateItem(ctx, item) {
		return Delegated
	}
	c.recordUnsupported(ctx, item)
	return Unsupported
}

func (c *Cascade) direct(ctx context.Context, item scraper.WorkItem) bool {
	filename, ext, err := fileinfo.FilenameAndExt(item.URL)
	if err != nil {
		return false
	}
	queue, err := c.session.Downloads.Register(ctx, scraper.NoCrawler)
	if err != nil {
		c.logger.Error("register direct download failed", zap.String("url", item.URL.String()), zap.Error(err))
		return false
	}
	media := scraper.MediaItem{
		URL:              item.URL,
		Referer:          item.URL,
		DownloadFolder:   filepath.Join(c.session.Settings.DownloadsDir, scraper.LooseFilesFolder),
		Filename:         filename,
		Ext:              ext,
		OriginalFilename: filename,
	}
	if err := queue.Enqueue(ctx, media); err != nil {
		c.logger.Error("queue direct download failed", zap.String("url", item.URL.String()), zap.Error(err))
		return false
	}
	c.session.Emit(progress.StageDirectFile, scraper.NoCrawler, item.URL, filename)
	return true
}

func (c *Cascade) delegateItem(ctx context.Context, item scraper.WorkItem) bool {
	if c.delegate == nil || !c.delegate.Enabled() {
		return false
	}
	if !c.delegate.Ready() {
		if err := c.delegate.Setup(ctx); err != nil {
			c.logger.Warn("delegate setup failed", zap.Error(err))
			return false
		}
		if !c.delegate.Enabled() {
			c.logger.Warn("delegate disabled during setup", zap.String("url", item.URL.String()))
			return false
		}
	}
	c.logger.Info("Sending unsupported URL to delegate", zap.String("url", item.URL.String()))
	if err := c.delegate.Send(ctx, item.URL, item.ParentTitle); err != nil {
		c.logger.Warn("delegate send failed", zap.String("url", item.URL.String()), zap.Error(err))
		return false
	}
	c.session.Emit(progress.StageDelegated, "", item.URL, item.ParentTitle)
	return true
}

func (c *Cascade) recordUnsupported(ctx context.Context, item scraper.WorkItem) {
	c.logger.Info("Unsupported URL", zap.String("url", item.URL.String()))
	c.session.Emit(progress.StageUnsupported, "", item.URL, "")
	if c.unsupported == nil {
		return
	}
	if err := c.unsupported.Record(ctx, item.URL, item.ParentTitle); err != nil {
		c.logger.Error("write unsupported url failed", zap.String("url", item.URL.String()), zap.Error(err))
	}
}
