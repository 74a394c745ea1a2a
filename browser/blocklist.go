package browser

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to protocol resource types.
var resourceTypes = map[string]proto.NetworkResourceType{
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Image":      proto.NetworkResourceTypeImage,
}

// trackerDomains are third-party ad and analytics hosts that never carry
// result content.
var trackerDomains = map[string]struct{}{
	"doubleclick.net":       {},
	"googlesyndication.com": {},
	"googleadservices.com":  {},
	"facebook.net":          {},
	"adnxs.com":             {},
	"adsrvr.org":            {},
	"amazon-adsystem.com":   {},
	"criteo.com":            {},
	"criteo.net":            {},
	"scorecardresearch.com": {},
	"hotjar.com":            {},
	"mixpanel.com":          {},
	"segment.io":            {},
	"demdex.net":            {},
	"moatads.com":           {},
}

// blockList decides which page requests are failed before they leave the
// browser.
type blockList struct {
	types    map[proto.NetworkResourceType]struct{}
	trackers bool
}

func newBlockList(typeNames []string, trackers bool) *blockList {
	b := &blockList{types: make(map[proto.NetworkResourceType]struct{}, len(typeNames)), trackers: trackers}
	for _, name := range typeNames {
		rt, ok := resourceTypes[name]
		if !ok {
			slog.Warn("ignoring unknown resource type in block list", "type", name)
			continue
		}
		b.types[rt] = struct{}{}
	}
	return b
}

func (b *blockList) empty() bool {
	return len(b.types) == 0 && !b.trackers
}

func (b *blockList) blocks(typ proto.NetworkResourceType, rawURL string) bool {
	if _, ok := b.types[typ]; ok {
		return true
	}
	if !b.trackers {
		return false
	}
	u, err := url.Parse(rawURL)
	return err == nil && isTrackerHost(u.Hostname())
}

// isTrackerHost checks host and each parent domain against trackerDomains.
func isTrackerHost(host string) bool {
	host = strings.ToLower(host)
	for host != "" {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return false
}

// hijack installs the block list on page. It returns nil when nothing is
// blocked; otherwise the caller stops the router when the page goes away.
func (b *blockList) hijack(page *rod.Page) *rod.HijackRouter {
	if b.empty() {
		return nil
	}
	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if b.blocks(h.Request.Type(), h.Request.URL().String()) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	// Run blocks until Stop.
	go router.Run()
	return router
}
