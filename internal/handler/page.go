package handler

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkmapper/internal/fileinfo"
	"github.com/JakeFAU/linkmapper/internal/progress"
	"github.com/JakeFAU/linkmapper/internal/ratelimit"
	"github.com/JakeFAU/linkmapper/internal/router"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

// Profile describes how a family's pages expose media and pagination.
type Profile struct {
	// Display names the family's folder under the downloads directory.
	Display string
	// MediaSelectors maps a CSS selector to the attribute holding a media URL.
	MediaSelectors map[string]string
	// FollowSelectors match same-family links worth fetching, such as
	// album pages or the next page of a thread.
	FollowSelectors []string
	TitleSelector   string
}

// FetchConfig controls HTTP behavior of page handlers.
type FetchConfig struct {
	UserAgent string
	Timeout   time.Duration
	// Observer receives fetch outcomes and rate limit waits. Optional.
	Observer FetchObserver
}

// FetchObserver records page fetch metrics. metrics.Collectors satisfies it.
type FetchObserver interface {
	ObservePage(family, status string)
	ObserveRateLimitDelay(host string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObservePage(string, string)                  {}
func (nopObserver) ObserveRateLimitDelay(string, time.Duration) {}

// PageHandler fetches pages of one family and splits what it finds into
// media items, same-family follow-ups and links for other families.
type PageHandler struct {
	*Base
	route     router.Route
	profile   Profile
	collector *colly.Collector
	limiter   *ratelimit.Limiter
	timeout   time.Duration
	observer  FetchObserver
	downloads scraper.Queue[scraper.MediaItem]
	// mediaAnchors is set when anchors are media sources, so direct file
	// links are kept rather than forwarded to their host's family.
	mediaAnchors bool
	lookup       func(host string) (router.Route, bool)

	seenMu sync.Mutex
	seen   map[string]struct{}
}

// NewPageHandler builds a handler for route's family.
func NewPageHandler(
	session *scraper.Session,
	route router.Route,
	profile Profile,
	fetch FetchConfig,
	limiter *ratelimit.Limiter,
) *PageHandler {
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	if profile.Display == "" {
		profile.Display = route.Crawler
	}
	if profile.TitleSelector == "" {
		profile.TitleSelector = "title"
	}
	collector := colly.NewCollector()
	if fetch.UserAgent != "" {
		collector.UserAgent = fetch.UserAgent
	}
	timeout := fetch.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	collector.AllowURLRevisit = true
	_, mediaAnchors := profile.MediaSelectors["a[href]"]
	observer := fetch.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	h := &PageHandler{
		route:        route,
		profile:      profile,
		collector:    collector,
		limiter:      limiter,
		timeout:      timeout,
		observer:     observer,
		mediaAnchors: mediaAnchors,
		lookup:       router.Lookup,
		seen:         make(map[string]struct{}),
	}
	h.Base = NewBase(route.Crawler, session, h.scrape, h.setup)
	return h
}

func (h *PageHandler) setup(ctx context.Context) error {
	q, err := h.session.Downloads.Register(ctx, h.route.Download)
	if err != nil {
		return fmt.Errorf("register download %s: %w", h.route.Download, err)
	}
	h.downloads = q
	return nil
}

// page is what one fetch produced.
type page struct {
	title  string
	media  []*url.URL
	follow []*url.URL
	links  []*url.URL
}

func (h *PageHandler) scrape(ctx context.Context, item scraper.WorkItem) error {
	if !h.markSeen(item.URL) {
		return nil
	}
	if fileinfo.IsDirectFile(item.URL) {
		return h.queueMedia(ctx, item.URL, item.URL, item.ParentTitle)
	}
	start := time.Now()
	if err := h.limiter.Wait(ctx, item.URL); err != nil {
		return err
	}
	h.observer.ObserveRateLimitDelay(item.URL.Hostname(), time.Since(start))
	result, err := h.fetch(ctx, item.URL)
	if err != nil {
		h.observer.ObservePage(h.route.Crawler, "error")
		return err
	}
	h.observer.ObservePage(h.route.Crawler, "ok")

	title := result.title
	if title == "" {
		title = item.ParentTitle
	}
	for _, u := range result.media {
		if err := h.queueMedia(ctx, u, item.URL, title); err != nil {
			return err
		}
	}
	for _, u := range result.follow {
		if err := h.Requeue(ctx, scraper.WorkItem{URL: u, ParentTitle: title}); err != nil {
			return err
		}
	}
	for _, u := range result.links {
		if err := h.session.Submit(ctx, scraper.WorkItem{URL: u, ParentTitle: title}); err != nil {
			return fmt.Errorf("forward %s: %w", u.Redacted(), err)
		}
	}
	h.logger.Debug("page scraped",
		zap.String("url", item.URL.String()),
		zap.Int("media", len(result.media)),
		zap.Int("follow", len(result.follow)),
		zap.Int("forwarded", len(result.links)),
	)
	return nil
}

func (h *PageHandler) fetch(ctx context.Context, target *url.URL) (page, error) {
	var (
		mu       sync.Mutex
		result   page
		fetchErr error
	)
	c := h.collector.Clone()
	c.SetRequestTimeout(h.timeout)

	c.OnHTML("html", func(e *colly.HTMLElement) {
		title := firstText(e.DOM, h.profile.TitleSelector)
		mu.Lock()
		result.title = title
		mu.Unlock()
	})
	for _, selector := range sortedSelectors(h.profile.MediaSelectors) {
		attr := h.profile.MediaSelectors[selector]
		c.OnHTML(selector, func(e *colly.HTMLElement) {
			u := absolute(e, attr)
			if u == nil || !fileinfo.IsDirectFile(u) {
				return
			}
			mu.Lock()
			result.media = append(result.media, u)
			mu.Unlock()
		})
	}
	for _, selector := range h.profile.FollowSelectors {
		c.OnHTML(selector, func(e *colly.HTMLElement) {
			u := absolute(e, "href")
			if u == nil || !h.sameFamily(u) {
				return
			}
			mu.Lock()
			result.follow = append(result.follow, u)
			mu.Unlock()
		})
	}
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		u := absolute(e, "href")
		if u == nil {
			return
		}
		if h.mediaAnchors && fileinfo.IsDirectFile(u) {
			return
		}
		route, ok := h.lookup(u.Hostname())
		if !ok || route.Crawler == h.route.Crawler {
			return
		}
		mu.Lock()
		result.links = append(result.links, u)
		mu.Unlock()
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(target.String())
	}()
	select {
	case <-ctx.Done():
		return page{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		mu.Lock()
		defer mu.Unlock()
		if fetchErr != nil {
			return page{}, fmt.Errorf("colly response failed: %w", fetchErr)
		}
		if err != nil {
			return page{}, fmt.Errorf("colly visit failed: %w", err)
		}
		result.media = dedupe(result.media)
		result.follow = dedupe(result.follow)
		result.links = dedupe(result.links)
		return result, nil
	}
}

func (h *PageHandler) queueMedia(ctx context.Context, u, referer *url.URL, title string) error {
	filename, ext, err := fileinfo.FilenameAndExt(u)
	if err != nil {
		return fmt.Errorf("media name: %w", err)
	}
	item := scraper.MediaItem{
		URL:              u,
		Referer:          referer,
		DownloadFolder:   h.folder(title),
		Filename:         filename,
		Ext:              ext,
		OriginalFilename: filename,
	}
	if err := h.downloads.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue media: %w", err)
	}
	h.session.Emit(progress.StageMediaQueued, h.route.Crawler, u, "")
	return nil
}

func (h *PageHandler) folder(title string) string {
	name := sanitizeFolder(title)
	if name == "" {
		name = h.profile.Display
	} else {
		name = fmt.Sprintf("%s (%s)", name, h.profile.Display)
	}
	return filepath.Join(h.session.Settings.DownloadsDir, name)
}

func (h *PageHandler) sameFamily(u *url.URL) bool {
	route, ok := h.lookup(u.Hostname())
	return ok && route.Crawler == h.route.Crawler
}

func (h *PageHandler) markSeen(u *url.URL) bool {
	key := u.String()
	h.seenMu.Lock()
	defer h.seenMu.Unlock()
	if _, ok := h.seen[key]; ok {
		return false
	}
	h.seen[key] = struct{}{}
	return true
}

func firstText(sel *goquery.Selection, selector string) string {
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

func absolute(e *colly.HTMLElement, attr string) *url.URL {
	raw := strings.TrimSpace(e.Attr(attr))
	if raw == "" {
		return nil
	}
	abs := e.Request.AbsoluteURL(raw)
	if abs == "" {
		return nil
	}
	u, err := url.Parse(abs)
	if err != nil || u.Host == "" {
		return nil
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	return u
}

func sortedSelectors(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupe(in []*url.URL) []*url.URL {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, u := range in {
		key := u.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}

var folderReplacer = strings.NewReplacer("/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "")

const maxFolderRunes = 120

func sanitizeFolder(name string) string {
	name = folderReplacer.Replace(strings.TrimSpace(name))
	if runes := []rune(name); len(runes) > maxFolderRunes {
		name = strings.TrimSpace(string(runes[:maxFolderRunes]))
	}
	return name
}
