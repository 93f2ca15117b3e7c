package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
)

// genericImagePatterns match logos, favicons, and default OG/share images
// that are site-wide rather than article-specific.
var genericImagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`/logo\b`),
	regexp.MustCompile(`/common/`),
	regexp.MustCompile(`meta_guide`),
	regexp.MustCompile(`default[-_]?(image|og|share|thumb)`),
	regexp.MustCompile(`og[-_]?image\.(png|jpg|jpeg)`),
	regexp.MustCompile(`share[-_]?image`),
	regexp.MustCompile(`favicon`),
}

var backgroundImageRe = regexp.MustCompile(`url\(['"]?([^'")\s]+)['"]?\)`)

// IsGenericImage reports whether the URL looks like a site-wide logo or
// default share image rather than an article image.
func IsGenericImage(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, p := range genericImagePatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// FilterImageURL returns the URL unchanged if it is a real article image,
// or empty when it is missing or generic.
func FilterImageURL(rawURL string) string {
	if rawURL == "" || IsGenericImage(rawURL) {
		return ""
	}
	return rawURL
}

// resolveImageRef makes src absolute against base and drops data: URIs and
// generic images.
func resolveImageRef(src, base string) string {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}
	return FilterImageURL(normalizeURL(src, base))
}

// bestImage extracts the most article-specific image from a page, in order
// of reliability: OpenGraph/Twitter meta, images inside content regions,
// any significant image, then CSS background-image. contentSelectors narrow
// the second pass to the adapter's known content regions.
func bestImage(doc *goquery.Document, base string, contentSelectors ...string) string {
	// OG and Twitter meta images first. The opengraph library handles the
	// property variants; fall back to goquery for twitter:image which it
	// does not cover.
	if html, err := doc.Html(); err == nil {
		og := opengraph.NewOpenGraph()
		if err := og.ProcessHTML(strings.NewReader(html)); err == nil {
			for _, img := range og.Images {
				if u := resolveImageRef(img.URL, base); u != "" {
					return u
				}
			}
		}
	}
	if tw, ok := doc.Find(`meta[name="twitter:image"]`).Attr("content"); ok {
		if u := resolveImageRef(tw, base); u != "" {
			return u
		}
	}

	// Images within content areas.
	areas := append([]string{}, contentSelectors...)
	areas = append(areas,
		"article", ".article", ".post-content", ".entry-content",
		".content-body", ".detail", ".news-detail", "main",
	)
	sel := strings.Join(areas, ", ")
	var contentImg string
	doc.Find(sel).Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !significantImage(s, 50, 50) {
			return true
		}
		src := firstAttr(s, "src", "data-src", "data-lazy-src")
		if u := resolveImageRef(src, base); u != "" {
			contentImg = u
			return false
		}
		return true
	})
	if contentImg != "" {
		return contentImg
	}

	// Any significant image on the page.
	var fallback string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !significantImage(s, 100, 80) {
			return true
		}
		src := firstAttr(s, "src", "data-src")
		if strings.Contains(src, "avatar") {
			return true
		}
		if u := resolveImageRef(src, base); u != "" {
			fallback = u
			return false
		}
		return true
	})
	if fallback != "" {
		return fallback
	}

	// Background-image in style attributes.
	var bg string
	doc.Find(`[style*="background-image"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		style, _ := s.Attr("style")
		if m := backgroundImageRe.FindStringSubmatch(style); m != nil {
			if u := resolveImageRef(m[1], base); u != "" {
				bg = u
				return false
			}
		}
		return true
	})
	return bg
}

// significantImage filters out tiny icons, tracking pixels, and spacers.
func significantImage(s *goquery.Selection, minW, minH int) bool {
	src := firstAttr(s, "src", "data-src")
	if strings.Contains(src, "pixel") || strings.Contains(src, "spacer") || strings.Contains(src, "icon") {
		return false
	}
	if w := attrInt(s, "width"); w > 0 && w < minW {
		return false
	}
	if h := attrInt(s, "height"); h > 0 && h < minH {
		return false
	}
	return true
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := s.Attr(n); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func attrInt(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
