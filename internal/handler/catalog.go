package handler

import (
	"context"
	"fmt"

	"github.com/JakeFAU/linkmapper/internal/ratelimit"
	"github.com/JakeFAU/linkmapper/internal/registry"
	"github.com/JakeFAU/linkmapper/internal/router"
	"github.com/JakeFAU/linkmapper/internal/scraper"
)

var genericMedia = map[string]string{
	"img[src]":          "src",
	"video[src]":        "src",
	"video source[src]": "src",
	"a[href]":           "href",
}

var forumProfile = Profile{
	MediaSelectors: map[string]string{
		".message-body img[src]":          "src",
		".message-body img[data-src]":     "data-src",
		".message-body video source[src]": "src",
		".message-body a[href]":           "href",
	},
	FollowSelectors: []string{"a.pageNav-jump--next[href]"},
	TitleSelector:   "h1.p-title-value",
}

var sharexProfile = Profile{
	MediaSelectors: map[string]string{
		"meta[property='og:image']": "content",
		".list-item-image img[src]": "src",
		"a[data-action=download]":   "href",
	},
	FollowSelectors: []string{
		"a[data-pagination=next][href]",
		".list-item-image a[href]",
		"a.album-link[href]",
	},
	TitleSelector: "a[data-text=album-name]",
}

var albumProfile = Profile{
	MediaSelectors:  genericMedia,
	FollowSelectors: []string{"a.next[href]", "link[rel=next][href]", "a[rel=next][href]"},
	TitleSelector:   "h1",
}

// profiles lists how each family is scraped. Families without an entry use
// albumProfile under their own name.
var profiles = map[string]Profile{
	"bunkr":            withDisplay(albumProfile, "Bunkr"),
	"celebforum":       withDisplay(forumProfile, "CelebForum"),
	"coomer":           withDisplay(albumProfile, "Coomer"),
	"cyberdrop":        withDisplay(albumProfile, "Cyberdrop"),
	"ehentai":          withDisplay(albumProfile, "E-Hentai"),
	"erome":            withDisplay(albumProfile, "Erome"),
	"gofile":           withDisplay(albumProfile, "GoFile"),
	"imgbb":            withDisplay(sharexProfile, "ImgBB"),
	"imgkiwi":          withDisplay(sharexProfile, "ImgKiwi"),
	"jpgchurch":        withDisplay(sharexProfile, "JPGChurch"),
	"kemono":           withDisplay(albumProfile, "Kemono"),
	"nudostar":         withDisplay(forumProfile, "NudoStar"),
	"reddit":           withDisplay(albumProfile, "Reddit"),
	"simpcity":         withDisplay(forumProfile, "SimpCity"),
	"socialmediagirls": withDisplay(forumProfile, "SocialMediaGirls"),
	"xbunker":          withDisplay(forumProfile, "XBunker"),
}

func withDisplay(p Profile, display string) Profile {
	p.Display = display
	return p
}

// ProfileFor returns the scraping profile of a family.
func ProfileFor(family string) Profile {
	if p, ok := profiles[family]; ok {
		return p
	}
	return withDisplay(albumProfile, family)
}

// Options configures every handler built from the catalog.
type Options struct {
	Fetch   FetchConfig
	Limiter *ratelimit.Limiter
	// Disabled families fail startup, which sends their links to the fallback path.
	Disabled []string
}

// Catalog returns a factory for every family in the routing table.
func Catalog(opts Options) map[string]registry.Factory {
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	disabled := make(map[string]struct{}, len(opts.Disabled))
	for _, name := range opts.Disabled {
		disabled[name] = struct{}{}
	}

	out := make(map[string]registry.Factory)
	for _, family := range router.Families() {
		family := family
		if _, off := disabled[family]; off {
			out[family] = func(session *scraper.Session, _ router.Route) (scraper.Handler, error) {
				return NewBase(family, session, nil, func(context.Context) error {
					return fmt.Errorf("%s handler disabled", family)
				}), nil
			}
			continue
		}
		profile := ProfileFor(family)
		out[family] = func(session *scraper.Session, route router.Route) (scraper.Handler, error) {
			return NewPageHandler(session, route, profile, opts.Fetch, limiter), nil
		}
	}
	return out
}
