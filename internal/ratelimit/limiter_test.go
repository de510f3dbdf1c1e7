package ratelimit

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestLimiterWaitDelaysSameHost(t *testing.T) {
	t.Parallel()

	// 10 RPS means one token every 100ms after the initial burst.
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, mustURL(t, "https://test.com/a")))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, mustURL(t, "https://TEST.com/b")))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	require.Greater(t, l.Waited("test.com"), time.Duration(0))
}

func TestLimiterDifferentHostsIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, mustURL(t, "https://a.com/1")))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, mustURL(t, "https://b.com/1")))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterDisabledAndOverrides(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0, Hosts: map[string]float64{"slow.com": 0.001}})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Wait(ctx, mustURL(t, "https://fast.com/x")))
	}

	require.NoError(t, l.Wait(ctx, mustURL(t, "https://slow.com/x")))
	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(timeout, mustURL(t, "https://slow.com/y")))
}

func TestLimiterNilURL(t *testing.T) {
	t.Parallel()

	require.NoError(t, New(Config{}).Wait(context.Background(), nil))
}
