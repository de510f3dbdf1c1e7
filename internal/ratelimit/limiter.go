// Package ratelimit implements per-host token buckets that handlers wait on
// before fetching a page.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the sustained request rate per host. Zero or less disables limiting.
	RPS   float64
	Burst int
	// Hosts overrides RPS for specific hostnames.
	Hosts map[string]float64
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      Config
	burst    int
	waited   map[string]time.Duration
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
		burst:    burst,
		waited:   make(map[string]time.Duration),
	}
}

// Wait blocks until a token is available for the URL's host.
func (l *Limiter) Wait(ctx context.Context, u *url.URL) error {
	host := "unknown"
	if u != nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		l.mu.Lock()
		l.waited[host] += d
		l.mu.Unlock()
	}
	return nil
}

// Waited reports the cumulative delay introduced for host.
func (l *Limiter) Waited(host string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waited[strings.ToLower(host)]
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	rps := l.cfg.RPS
	if override, ok := l.cfg.Hosts[host]; ok {
		rps = override
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, l.burst)
	l.limiters[host] = limiter
	return limiter
}
