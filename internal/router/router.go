// Package router maps hostnames to the handler family and download capability
// responsible for them.
package router

import (
	"strings"

	"github.com/JakeFAU/linkmapper/internal/scraper"
)

// Route is one row of the routing table.
type Route struct {
	Key scraper.DomainKey
	// Crawler names the handler family. Keys sharing a family share one handler.
	Crawler string
	// Download names the download capability registered for the family.
	Download string
}

// table is scanned in order and the first key contained in the host wins, so
// "xbunkr" must precede "bunkr".
var table = []Route{
	{Key: "xbunkr", Crawler: "xbunkr", Download: "xbunkr"},
	{Key: "bunkr", Crawler: "bunkr", Download: "bunkr"},
	{Key: "celebforum", Crawler: "celebforum", Download: "celebforum"},
	{Key: "coomer", Crawler: "coomer", Download: "coomer"},
	{Key: "cyberdrop", Crawler: "cyberdrop", Download: "cyberdrop"},
	{Key: "cyberfile", Crawler: "cyberfile", Download: "cyberfile"},
	{Key: "e-hentai", Crawler: "ehentai", Download: "e-hentai"},
	{Key: "erome", Crawler: "erome", Download: "erome"},
	{Key: "fapello", Crawler: "fapello", Download: "fapello"},
	{Key: "gofile", Crawler: "gofile", Download: "gofile"},
	{Key: "ibb.co", Crawler: "imgbb", Download: "imgbb"},
	{Key: "imageban", Crawler: "imageban", Download: "imageban"},
	{Key: "imgbox", Crawler: "imgbox", Download: "imgbox"},
	{Key: "imgur", Crawler: "imgur", Download: "imgur"},
	{Key: "img.kiwi", Crawler: "imgkiwi", Download: "sharex"},
	{Key: "jpg.church", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "jpg.homes", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "jpg.fish", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "jpg.fishing", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "jpg.pet", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "jpeg.pet", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "jpg1.su", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "jpg2.su", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "jpg3.su", Crawler: "jpgchurch", Download: "sharex"},
	{Key: "kemono", Crawler: "kemono", Download: "kemono"},
	{Key: "mediafire", Crawler: "mediafire", Download: "mediafire"},
	{Key: "nudostar.com", Crawler: "nudostar", Download: "nudostar"},
	{Key: "nudostar.tv", Crawler: "nudostartv", Download: "nudostartv"},
	{Key: "pimpandhost", Crawler: "pimpandhost", Download: "pimpandhost"},
	{Key: "pixeldrain", Crawler: "pixeldrain", Download: "pixeldrain"},
	{Key: "postimg", Crawler: "postimg", Download: "postimg"},
	{Key: "reddit", Crawler: "reddit", Download: "reddit"},
	{Key: "redd.it", Crawler: "reddit", Download: "reddit"},
	{Key: "redgifs", Crawler: "redgifs", Download: "redgifs"},
	{Key: "saint", Crawler: "saint", Download: "saint"},
	{Key: "socialmediagirls", Crawler: "socialmediagirls", Download: "socialmediagirls"},
	{Key: "simpcity", Crawler: "simpcity", Download: "simpcity"},
	{Key: "xbunker", Crawler: "xbunker", Download: "xbunker"},
}

// Lookup returns the first route whose key is a substring of host.
func Lookup(host string) (Route, bool) {
	host = strings.ToLower(host)
	if host == "" {
		return Route{}, false
	}
	for _, r := range table {
		if strings.Contains(host, string(r.Key)) {
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns a copy of the routing table in scan order.
func Routes() []Route {
	return append([]Route(nil), table...)
}

// Aliases lists the keys that share the given handler family.
func Aliases(crawler string) []scraper.DomainKey {
	var out []scraper.DomainKey
	for _, r := range table {
		if r.Crawler == crawler {
			out = append(out, r.Key)
		}
	}
	return out
}

// Families lists every handler family once, in table order.
func Families() []string {
	seen := make(map[string]struct{}, len(table))
	var out []string
	for _, r := range table {
		if _, ok := seen[r.Crawler]; ok {
			continue
		}
		seen[r.Crawler] = struct{}{}
		out = append(out, r.Crawler)
	}
	return out
}
