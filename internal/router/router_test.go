package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/linkmapper/internal/scraper"
)

func TestLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host     string
		key      scraper.DomainKey
		crawler  string
		download string
	}{
		{host: "cdn.jpg.church", key: "jpg.church", crawler: "jpgchurch", download: "sharex"},
		{host: "JPG3.SU", key: "jpg3.su", crawler: "jpgchurch", download: "sharex"},
		{host: "xbunkr.com", key: "xbunkr", crawler: "xbunkr", download: "xbunkr"},
		{host: "cdn9.bunkr.si", key: "bunkr", crawler: "bunkr", download: "bunkr"},
		{host: "i.ibb.co", key: "ibb.co", crawler: "imgbb", download: "imgbb"},
		{host: "i.redd.it", key: "redd.it", crawler: "reddit", download: "reddit"},
		{host: "nudostar.tv", key: "nudostar.tv", crawler: "nudostartv", download: "nudostartv"},
		{host: "img.kiwi", key: "img.kiwi", crawler: "imgkiwi", download: "sharex"},
		{host: "www.e-hentai.org", key: "e-hentai", crawler: "ehentai", download: "e-hentai"},
	}
	for _, tc := range tests {
		t.Run(tc.host, func(t *testing.T) {
			t.Parallel()
			r, ok := Lookup(tc.host)
			require.True(t, ok)
			assert.Equal(t, tc.key, r.Key)
			assert.Equal(t, tc.crawler, r.Crawler)
			assert.Equal(t, tc.download, r.Download)
		})
	}
}

func TestLookupMisses(t *testing.T) {
	t.Parallel()

	for _, host := range []string{"", "example.com", "unknown-host.test"} {
		_, ok := Lookup(host)
		assert.False(t, ok, host)
	}
}

func TestTableShape(t *testing.T) {
	t.Parallel()

	routes := Routes()
	require.Len(t, routes, 38)

	seen := make(map[scraper.DomainKey]bool)
	for _, r := range routes {
		require.False(t, seen[r.Key], "duplicate key %s", r.Key)
		seen[r.Key] = true
		require.NotEmpty(t, r.Crawler)
		require.NotEmpty(t, r.Download)
	}

	routes[0].Key = "mutated"
	assert.Equal(t, scraper.DomainKey("xbunkr"), Routes()[0].Key)
}

func TestAliases(t *testing.T) {
	t.Parallel()

	church := Aliases("jpgchurch")
	assert.Len(t, church, 9)
	assert.Equal(t, scraper.DomainKey("jpg.church"), church[0])
	assert.Equal(t, []scraper.DomainKey{"reddit", "redd.it"}, Aliases("reddit"))
	assert.Empty(t, Aliases("nope"))
}

func TestFamilies(t *testing.T) {
	t.Parallel()

	families := Families()
	assert.Len(t, families, 29)
	assert.Equal(t, "xbunkr", families[0])
	assert.Contains(t, families, "jpgchurch")
}

func TestLookupShadowedKeyStaysInFamily(t *testing.T) {
	t.Parallel()

	// "jpg.fish" is scanned before "jpg.fishing" and matches it first.
	r, ok := Lookup("jpg.fishing")
	require.True(t, ok)
	assert.Equal(t, scraper.DomainKey("jpg.fish"), r.Key)
	assert.Equal(t, "jpgchurch", r.Crawler)
}
