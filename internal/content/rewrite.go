// Package content turns authored campaign HTML into dispatch-ready HTML.
//
// All functions here are pure. Markup is walked with the x/net/html tokenizer
// and every token that is not rewritten is copied back byte for byte, so
// documents the tokenizer cannot make sense of come out unchanged.
package content

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const (
	clickPath = "/track/click/"
	openPath  = "/track/open/"
)

// assetAttrs hold URLs of resources the mail client fetches itself.
var assetAttrs = map[string]struct{}{
	"src":        {},
	"background": {},
	"poster":     {},
}

var localHosts = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"::1":       {},
}

// Absolutize rewrites root-relative and local-development asset URLs to live
// under baseURL. URLs on any other host are left alone.
func Absolutize(src, baseURL string) string {
	base := trimBase(baseURL)
	out, _ := rewriteTags(src, func(tok *html.Token) bool {
		return absolutizeAssets(tok, base)
	})
	return out
}

// Render produces one recipient's copy: assets absolutized, navigable links
// wrapped with the click tracker and the open pixel appended. The same
// inputs always give byte-identical output. Without a base URL there is no
// reachable tracker, so links and the pixel are left out.
func Render(src string, campaignID uint64, trackingID, baseURL string) string {
	base := trimBase(baseURL)
	if base == "" {
		return src
	}
	pixel := OpenURL(base, campaignID, trackingID)
	hasPixel := false

	out, bodyEnd := rewriteTags(src, func(tok *html.Token) bool {
		changed := absolutizeAssets(tok, base)
		if tok.Data == "img" {
			if v, ok := attr(tok, "src"); ok && v == pixel {
				hasPixel = true
			}
		}
		if tok.Data == "a" || tok.Data == "area" {
			if wrapHref(tok, base, campaignID, trackingID) {
				changed = true
			}
		}
		return changed
	})
	if hasPixel {
		return out
	}

	tag := pixelTag(pixel)
	if bodyEnd < 0 {
		return out + tag
	}
	return out[:bodyEnd] + tag + out[bodyEnd:]
}

// ClickURL is the tracker URL a link to target is rewritten to.
func ClickURL(baseURL string, campaignID uint64, trackingID, target string) string {
	return trimBase(baseURL) + clickPath + strconv.FormatUint(campaignID, 10) + "/" + trackingID +
		"?u=" + url.QueryEscape(target)
}

// OpenURL is the address of the open pixel.
func OpenURL(baseURL string, campaignID uint64, trackingID string) string {
	return trimBase(baseURL) + openPath + strconv.FormatUint(campaignID, 10) + "/" + trackingID
}

func pixelTag(src string) string {
	return `<img src="` + html.EscapeString(src) + `" width="0" height="0" alt="" style="display:block;border:0;width:0;height:0;" />`
}

// rewriteTags copies src token by token, handing start and self-closing tags
// to fn. Tags fn reports as changed are re-serialized, everything else is
// written back raw. It also returns the output offset of the last </body>,
// or -1.
func rewriteTags(src string, fn func(tok *html.Token) bool) (string, int) {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	b.Grow(len(src) + 256)
	bodyEnd := -1

	for {
		tt := z.Next()
		// Raw must be copied before TagName/Token, which lowercase in place.
		raw := string(z.Raw())
		switch tt {
		case html.ErrorToken:
			b.WriteString(raw)
			return b.String(), bodyEnd
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "body" {
				bodyEnd = b.Len()
			}
			b.WriteString(raw)
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if fn(&tok) {
				b.WriteString(tok.String())
			} else {
				b.WriteString(raw)
			}
		default:
			b.WriteString(raw)
		}
	}
}

func absolutizeAssets(tok *html.Token, base string) bool {
	changed := false
	for i := range tok.Attr {
		a := &tok.Attr[i]
		_, isAsset := assetAttrs[a.Key]
		if !isAsset && !(tok.Data == "link" && a.Key == "href") {
			continue
		}
		if abs, ok := absolutizeURL(a.Val, base); ok && abs != a.Val {
			a.Val = abs
			changed = true
		}
	}
	return changed
}

// absolutizeURL reports false when v should stay as it is.
func absolutizeURL(v, base string) (string, bool) {
	s := strings.TrimSpace(v)
	if base == "" || s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") {
		return base + s, true
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	if _, ok := localHosts[u.Hostname()]; !ok {
		return "", false
	}
	rest := u.EscapedPath()
	if u.RawQuery != "" {
		rest += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		rest += "#" + u.EscapedFragment()
	}
	if rest == "" {
		rest = "/"
	}
	return base + rest, true
}

func wrapHref(tok *html.Token, base string, campaignID uint64, trackingID string) bool {
	for i := range tok.Attr {
		a := &tok.Attr[i]
		if a.Key != "href" {
			continue
		}
		target, ok := navigableTarget(a.Val, base)
		if !ok {
			return false
		}
		a.Val = ClickURL(base, campaignID, trackingID, target)
		return true
	}
	return false
}

// navigableTarget returns the absolute destination a link should redirect
// to, or false for links that must not be wrapped.
func navigableTarget(v, base string) (string, bool) {
	s := strings.TrimSpace(v)
	if s == "" || strings.HasPrefix(s, "#") {
		return "", false
	}
	if hasPrefixFold(s, "mailto:") {
		return "", false
	}
	if base != "" && strings.HasPrefix(s, base+clickPath) {
		return "", false
	}
	if strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") {
		if base == "" {
			return "", false
		}
		s = base + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return s, true
}

func attr(tok *html.Token, key string) (string, bool) {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func trimBase(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
