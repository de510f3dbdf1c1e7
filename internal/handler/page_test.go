package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkmapper/internal/download"
	"github.com/JakeFAU/linkmapper/internal/router"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

func routeFor(t *testing.T, host string) router.Route {
	t.Helper()
	r, ok := router.Lookup(host)
	require.True(t, ok, host)
	return r
}

func newAlbumServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/album", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `<html><head><title>p2</title></head><body>
<h1>Page 2</h1><img src="/img/c.jpg"></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><head><title>t</title></head><body>
<h1>My Album</h1>
<img src="/img/a.jpg">
<img src="/img/a.jpg">
<a href="/img/b.png">b</a>
<a href="/about">about</a>
<a href="https://gofile.io/d/xyz">mirror</a>
<a href="https://example.org/elsewhere">elsewhere</a>
<a class="next" href="/album?page=2">next</a>
</body></html>`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newLocalHandler binds the test server's host to the bunkr family.
func newLocalHandler(t *testing.T, session *scraper.Session, srv *httptest.Server) *PageHandler {
	t.Helper()
	serverURL, err := url.Parse(srv.URL)
	require.NoError(t, err)
	h := NewPageHandler(session, routeFor(t, "bunkr.si"), ProfileFor("bunkr"), FetchConfig{
		UserAgent: "linkmapper-test",
		Timeout:   5 * time.Second,
	}, nil)
	h.lookup = func(host string) (router.Route, bool) {
		if host == serverURL.Hostname() {
			return routeFor(t, "bunkr.si"), true
		}
		return router.Lookup(host)
	}
	return h
}

func drain(q *download.Manager, name string) []scraper.MediaItem {
	queue, ok := q.Queue(name)
	if !ok {
		return nil
	}
	var out []scraper.MediaItem
	for {
		item, ok := queue.TryDequeue()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

func TestPageHandlerSplitsMediaFollowAndForward(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	session, downloads := newTestSession(t, dir)
	srv := newAlbumServer(t)
	h := newLocalHandler(t, session, srv)

	require.NoError(t, h.Startup(ctx))
	go h.RunLoop(ctx)

	session.Tracker.Add(1)
	require.NoError(t, h.Enqueue(ctx, scraper.WorkItem{URL: mustURL(t, srv.URL+"/album")}))

	// The forwarded gofile link stays pending on the intake queue.
	require.Eventually(t, func() bool {
		return h.Complete() && session.Tracker.Pending() == 1
	}, 5*time.Second, 10*time.Millisecond)

	forwarded, ok := session.Intake.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "https://gofile.io/d/xyz", forwarded.URL.String())
	assert.Equal(t, "My Album", forwarded.ParentTitle)
	_, ok = session.Intake.TryDequeue()
	assert.False(t, ok)

	media := drain(downloads, "bunkr")
	names := make([]string, 0, len(media))
	for _, item := range media {
		names = append(names, item.Filename)
		assert.NotEmpty(t, item.Ext)
		assert.NotNil(t, item.Referer)
	}
	assert.ElementsMatch(t, []string{"a.jpg", "b.png", "c.jpg"}, names)

	for _, item := range media {
		switch item.Filename {
		case "c.jpg":
			assert.Equal(t, filepath.Join(dir, "Page 2 (Bunkr)"), item.DownloadFolder)
		default:
			assert.Equal(t, filepath.Join(dir, "My Album (Bunkr)"), item.DownloadFolder)
			assert.Equal(t, srv.URL+"/album", item.Referer.String())
		}
	}

	processed, failed := h.Stats()
	assert.EqualValues(t, 2, processed)
	assert.Zero(t, failed)
}

func TestPageHandlerDirectFileSkipsFetch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, downloads := newTestSession(t, t.TempDir())
	srv := newAlbumServer(t)
	h := newLocalHandler(t, session, srv)
	require.NoError(t, h.Startup(ctx))
	go h.RunLoop(ctx)

	session.Tracker.Add(2)
	item := scraper.WorkItem{URL: mustURL(t, "https://cdn.bunkr.si/v/clip.mp4"), ParentTitle: "Thread"}
	require.NoError(t, h.Enqueue(ctx, item))
	require.NoError(t, h.Enqueue(ctx, item))

	require.Eventually(t, func() bool {
		return h.Complete() && session.Tracker.Pending() == 0
	}, time.Second, 5*time.Millisecond)

	media := drain(downloads, "bunkr")
	require.Len(t, media, 1)
	assert.Equal(t, "clip.mp4", media[0].Filename)
	assert.Equal(t, "mp4", media[0].Ext)
	assert.Contains(t, media[0].DownloadFolder, "Thread (Bunkr)")
}

func TestPageHandlerFetchFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, downloads := newTestSession(t, t.TempDir())
	srv := newAlbumServer(t)
	h := newLocalHandler(t, session, srv)
	require.NoError(t, h.Startup(ctx))
	go h.RunLoop(ctx)

	session.Tracker.Add(1)
	require.NoError(t, h.Enqueue(ctx, scraper.WorkItem{URL: mustURL(t, srv.URL+"/broken")}))

	require.Eventually(t, func() bool {
		_, failed := h.Stats()
		return failed == 1 && session.Tracker.Pending() == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, drain(downloads, "bunkr"))
}

func TestSanitizeFolder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a-b- c", sanitizeFolder(` a/b: c?* `))
	assert.Empty(t, sanitizeFolder("   "))

	long := sanitizeFolder(strings.Repeat("é", 200))
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, maxFolderRunes, utf8.RuneCountInString(long))
}

func TestPageHandlerSameFamilyIgnoresPort(t *testing.T) {
	t.Parallel()

	session, _ := newTestSession(t, t.TempDir())
	h := NewPageHandler(session, routeFor(t, "bunkr.si"), ProfileFor("bunkr"), FetchConfig{}, nil)

	assert.True(t, h.sameFamily(mustURL(t, "https://bunkr.si:8443/a/1")))
	assert.False(t, h.sameFamily(mustURL(t, "https://gofile.io:443/d/2")))
}
