package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkmapper/internal/download"
	"github.com/JakeFAU/linkmapper/internal/router"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

type fakeHandler struct {
	name       string
	startups   atomic.Int32
	loops      atomic.Int32
	startupErr error
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) Startup(context.Context) error {
	f.startups.Add(1)
	return f.startupErr
}

func (f *fakeHandler) RunLoop(ctx context.Context) {
	f.loops.Add(1)
	<-ctx.Done()
}

func (f *fakeHandler) Complete() bool                                  { return true }
func (f *fakeHandler) Enqueue(context.Context, scraper.WorkItem) error { return nil }
func (f *fakeHandler) Len() int                                        { return 0 }

type factoryCounter struct {
	mu       sync.Mutex
	created  map[string]int
	handlers map[string]*fakeHandler
	err      map[string]error
}

func newFactoryCounter() *factoryCounter {
	return &factoryCounter{
		created:  make(map[string]int),
		handlers: make(map[string]*fakeHandler),
		err:      make(map[string]error),
	}
}

func (c *factoryCounter) factory(_ *scraper.Session, route router.Route) (scraper.Handler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created[route.Crawler]++
	h := &fakeHandler{name: route.Crawler, startupErr: c.err[route.Crawler]}
	c.handlers[route.Crawler] = h
	return h, nil
}

func (c *factoryCounter) factories() map[string]Factory {
	out := make(map[string]Factory)
	for _, family := range router.Families() {
		out[family] = c.factory
	}
	return out
}

func newSession(t *testing.T) (*scraper.Session, *download.Manager) {
	t.Helper()
	downloads := download.NewManager(nil, nil)
	s, err := scraper.NewSession(downloads, scraper.Settings{})
	require.NoError(t, err)
	return s, downloads
}

func byKey(t *testing.T, key scraper.DomainKey) router.Route {
	t.Helper()
	for _, r := range router.Routes() {
		if r.Key == key {
			return r
		}
	}
	t.Fatalf("no route for key %s", key)
	return router.Route{}
}

func route(t *testing.T, host string) router.Route {
	t.Helper()
	r, ok := router.Lookup(host)
	require.True(t, ok, host)
	return r
}

func TestAliasKeysShareOneHandler(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, downloads := newSession(t)
	counter := newFactoryCounter()
	reg := New(session, counter.factories())

	first, err := reg.GetOrCreate(ctx, route(t, "jpg.church"))
	require.NoError(t, err)
	for _, key := range router.Aliases("jpgchurch") {
		h, err := reg.GetOrCreate(ctx, byKey(t, key))
		require.NoError(t, err)
		require.Same(t, first, h)
		bound, ok := reg.Get(key)
		require.True(t, ok)
		require.Same(t, first, bound)
	}

	require.Equal(t, 1, counter.created["jpgchurch"])
	fake := counter.handlers["jpgchurch"]
	require.EqualValues(t, 1, fake.startups.Load())
	require.Eventually(t, func() bool { return fake.loops.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"sharex"}, downloads.Capabilities())
	require.Len(t, reg.Handlers(), 1)
	require.Len(t, reg.Bindings(), 9)
}

func TestWarmRegistryHasNoSideEffects(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, downloads := newSession(t)
	counter := newFactoryCounter()
	reg := New(session, counter.factories())

	r := route(t, "cdn.bunkr.si")
	h1, err := reg.GetOrCreate(ctx, r)
	require.NoError(t, err)
	h2, err := reg.GetOrCreate(ctx, r)
	require.NoError(t, err)

	require.Same(t, h1, h2)
	require.Equal(t, 1, counter.created["bunkr"])
	require.EqualValues(t, 1, counter.handlers["bunkr"].startups.Load())
	require.Equal(t, []string{"bunkr"}, downloads.Capabilities())
}

func TestConcurrentCreationStartsOnce(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, _ := newSession(t)
	counter := newFactoryCounter()
	reg := New(session, counter.factories())

	var wg sync.WaitGroup
	errs := make(chan error, 36)
	for _, key := range router.Aliases("jpgchurch") {
		r := byKey(t, key)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := reg.GetOrCreate(ctx, r)
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, counter.created["jpgchurch"])
}

func TestFailedStartupIsSticky(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session, downloads := newSession(t)
	counter := newFactoryCounter()
	counter.err["reddit"] = errors.New("login required")
	reg := New(session, counter.factories())

	_, err := reg.GetOrCreate(ctx, route(t, "reddit.com"))
	require.ErrorIs(t, err, ErrHandlerFailed)
	require.ErrorContains(t, err, "login required")

	_, err = reg.GetOrCreate(ctx, route(t, "i.redd.it"))
	require.ErrorIs(t, err, ErrHandlerFailed)

	require.Equal(t, 1, counter.created["reddit"])
	require.Empty(t, downloads.Capabilities())
	require.Equal(t, []string{"reddit"}, reg.Failed())
	require.Empty(t, reg.Handlers())
	_, ok := reg.Get("reddit")
	require.False(t, ok)
}

func TestUnknownCrawler(t *testing.T) {
	t.Parallel()

	session, _ := newSession(t)
	reg := New(session, nil)

	_, err := reg.GetOrCreate(context.Background(), route(t, "gofile.io"))
	require.ErrorIs(t, err, ErrUnknownCrawler)
	require.ErrorIs(t, err, ErrHandlerFailed)
}
