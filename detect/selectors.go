package detect

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ymurata/sitewatch/parser"
)

// listPatterns are the container/repeated-child tag pairs checked for
// list-like structure.
var listPatterns = []struct{ container, item string }{
	{"ul", "li"},
	{"ol", "li"},
	{"div", "article"},
	{"div", "div"},
	{"section", "article"},
	{"section", "div"},
}

// selectorCandidate is one scored proposal for extracting a repeated list.
type selectorCandidate struct {
	ItemSelector        string
	LinkSelector        string
	TitleSelector       string
	DateSelector        string
	ImageSelector       string
	DescriptionSelector string
	LinkFilterPattern   string
	Score               int
	Count               int
}

// inferListConfig runs selector inference and builds the proposed html-list
// result. Inference is a pure function of the parsed document: repeated
// invocations over the same markup return the same candidate and score.
func inferListConfig(doc *goquery.Document, origin string) *Result {
	candidates := rankListCandidates(doc)

	if len(candidates) > 0 && candidates[0].Score >= 30 {
		best := candidates[0]
		cfg := parser.HTMLListConfig{
			BaseURL: origin,
			List: parser.ListRules{
				ItemSelector:        best.ItemSelector,
				LinkSelector:        best.LinkSelector,
				TitleSelector:       best.TitleSelector,
				DateSelector:        best.DateSelector,
				ImageSelector:       best.ImageSelector,
				DescriptionSelector: best.DescriptionSelector,
			},
			Content: parser.ContentRules{Selectors: contentSelectors(doc)},
		}
		confidence := ConfidenceMedium
		if best.Score >= 60 {
			confidence = ConfidenceHigh
		}
		return &Result{
			ParserType:   parser.TypeHTMLList,
			ParserConfig: mustJSON(cfg),
			Confidence:   confidence,
			Description:  fmt.Sprintf("HTML記事リスト検出 (%d件, セレクター: %s)", best.Count, best.ItemSelector),
		}
	}

	// Secondary strategy: a coarse anchor filter derived from news-path links.
	if nc := newsPathCandidate(doc); nc != nil {
		cfg := parser.HTMLListConfig{
			BaseURL: origin,
			List: parser.ListRules{
				ItemSelector:      "a",
				LinkSelector:      "self",
				LinkFilterPattern: nc.LinkFilterPattern,
			},
			Content: parser.ContentRules{Selectors: contentSelectors(doc)},
		}
		return &Result{
			ParserType:   parser.TypeHTMLList,
			ParserConfig: mustJSON(cfg),
			Confidence:   ConfidenceLow,
			Description:  fmt.Sprintf("ニュース系リンクを検出 (%d件, パス: %s)", nc.Count, nc.LinkFilterPattern),
		}
	}

	// Generic fallback: broad universal selectors, still usable.
	cfg := parser.HTMLListConfig{
		BaseURL: origin,
		List: parser.ListRules{
			ItemSelector:  "article, .post, .news-item, .entry, li",
			LinkSelector:  "a",
			TitleSelector: "h2, h3, h4, .title, .heading",
		},
		Content: parser.ContentRules{Selectors: contentSelectors(doc)},
	}
	return &Result{
		ParserType:   parser.TypeHTMLList,
		ParserConfig: mustJSON(cfg),
		Confidence:   ConfidenceLow,
		Description:  "汎用セレクターを設定しました。巡回結果を見て調整が必要な場合があります。",
	}
}

// rankListCandidates scores every plausible container/child pair and returns
// candidates sorted by score, best first.
func rankListCandidates(doc *goquery.Document) []selectorCandidate {
	var candidates []selectorCandidate

	for _, pattern := range listPatterns {
		doc.Find(pattern.container).Each(func(_ int, container *goquery.Selection) {
			items := container.ChildrenFiltered(pattern.item)
			if items.Length() < 3 {
				return
			}

			linked := 0
			items.Each(func(_ int, item *goquery.Selection) {
				if item.Find("a[href]").Length() > 0 {
					linked++
				}
			})
			if float64(linked) < float64(items.Length())*0.6 {
				return
			}

			containerSelector := buildSelector(doc, container)
			if containerSelector == "" {
				return
			}

			analysis := analyzeItem(items.First())
			if analysis.TitleSelector == "" {
				return
			}

			if analysis.LinkSelector == "" {
				analysis.LinkSelector = "a"
			}
			analysis.ItemSelector = containerSelector + " > " + pattern.item
			analysis.Count = items.Length()
			analysis.Score = scoreCandidate(analysis)
			candidates = append(candidates, analysis)
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// scoreCandidate weights item count and discovered field selectors.
func scoreCandidate(c selectorCandidate) int {
	score := c.Count * 5
	if score > 30 {
		score = 30
	}
	if c.TitleSelector != "" {
		score += 25
	}
	if c.DateSelector != "" {
		score += 20
	}
	if c.LinkSelector != "" {
		score += 15
	}
	if c.ImageSelector != "" {
		score += 10
	}
	if c.DescriptionSelector != "" {
		score += 10
	}
	return score
}

// buildSelector produces a stable CSS selector for a container element,
// preferring its id, then up to two utility-free class names.
func buildSelector(doc *goquery.Document, el *goquery.Selection) string {
	if id, ok := el.Attr("id"); ok && id != "" {
		return "#" + id
	}

	class, _ := el.Attr("class")
	var classes []string
	for _, c := range strings.Fields(class) {
		if stateClassRe.MatchString(c) {
			continue
		}
		classes = append(classes, c)
		if len(classes) == 2 {
			break
		}
	}
	if len(classes) == 0 {
		return ""
	}

	tag := goquery.NodeName(el)
	selector := tag + "." + strings.Join(classes, ".")
	if doc.Find(selector).Length() <= 3 {
		return selector
	}
	return tag + "." + classes[0]
}

var stateClassRe = regexp.MustCompile(`^(js-|is-|has-|active|open|show)`)

var (
	titleCandidates = []string{
		"h1", "h2", "h3", "h4", "h5", "h6",
		".title", ".heading", ".tit", ".name",
		"[class*='title']", "[class*='heading']",
	}
	dateCandidates = []string{
		".date", ".time", ".published", ".post-date",
		"[class*='date']", "[class*='time']",
		"time", "span.date",
	}
	descCandidates = []string{
		".description", ".excerpt", ".summary", ".txt", ".text",
		"[class*='desc']", "[class*='excerpt']", "[class*='abstract']",
		"p",
	}
)

// analyzeItem inspects the first list item and proposes field selectors.
func analyzeItem(item *goquery.Selection) selectorCandidate {
	var c selectorCandidate

	links := item.Find("a[href]")
	switch {
	case links.Length() == 1:
		c.LinkSelector = "a"
	case links.Length() > 1:
		if item.Find("a h1, a h2, a h3, a h4, a h5, a h6").Length() > 0 {
			c.LinkSelector = "a:has(h1, h2, h3, h4, h5, h6)"
		} else {
			c.LinkSelector = "a"
		}
	}

	for _, sel := range titleCandidates {
		if t := item.Find(sel); t.Length() > 0 && len(strings.TrimSpace(t.Text())) > 5 {
			c.TitleSelector = sel
			break
		}
	}

	for _, sel := range dateCandidates {
		if d := item.Find(sel); d.Length() > 0 && looksLikeDate(strings.TrimSpace(d.First().Text())) {
			c.DateSelector = sel
			break
		}
	}
	if c.DateSelector == "" {
		item.Find("span, small, time, p").EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := strings.TrimSpace(el.Text())
			if !looksLikeDate(text) || len(text) >= 30 {
				return true
			}
			if class, _ := el.Attr("class"); class != "" {
				c.DateSelector = goquery.NodeName(el) + "." + strings.Fields(class)[0]
			} else {
				c.DateSelector = goquery.NodeName(el)
			}
			return false
		})
	}

	if item.Find("img").Length() > 0 {
		c.ImageSelector = "img"
	} else if bg := item.Find(`[style*='background-image']`); bg.Length() > 0 {
		if class, _ := bg.Attr("class"); class != "" {
			c.ImageSelector = "." + strings.Fields(class)[0]
		} else {
			c.ImageSelector = `[style*='background-image']`
		}
	}

	titleText := ""
	if c.TitleSelector != "" {
		titleText = strings.TrimSpace(item.Find(c.TitleSelector).Text())
	}
	for _, sel := range descCandidates {
		if d := item.Find(sel); d.Length() > 0 {
			text := strings.TrimSpace(d.First().Text())
			if len(text) > 20 && text != titleText {
				c.DescriptionSelector = sel
				break
			}
		}
	}

	return c
}

var dateShapeRes = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}[.\-/]\d{1,2}[.\-/]\d{1,2}`),
	regexp.MustCompile(`(?i)\d{1,2}\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)`),
	regexp.MustCompile(`\d{4}年\d{1,2}月`),
	regexp.MustCompile(`(?i)^(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\w*\s+\d`),
}

// looksLikeDate matches ISO-like, Japanese, and English month-name forms.
func looksLikeDate(text string) bool {
	for _, re := range dateShapeRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var newsPathRes = []*regexp.Regexp{
	regexp.MustCompile(`/news/`),
	regexp.MustCompile(`/press`),
	regexp.MustCompile(`/article`),
	regexp.MustCompile(`/blog/`),
	regexp.MustCompile(`/post/`),
	regexp.MustCompile(`/info/`),
	regexp.MustCompile(`/topics/`),
}

// newsPathCandidate scans all page anchors for common news-path shapes. With
// three or more matches it derives the common path prefix as a link filter.
func newsPathCandidate(doc *goquery.Document) *selectorCandidate {
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		for _, re := range newsPathRes {
			if re.MatchString(href) {
				links = append(links, href)
				return
			}
		}
	})

	if len(links) < 3 {
		return nil
	}
	prefix := commonPathPrefix(links)
	if prefix == "" {
		return nil
	}
	return &selectorCandidate{
		ItemSelector:      "a",
		LinkSelector:      "self",
		LinkFilterPattern: prefix,
		Score:             20,
		Count:             len(links),
	}
}

// commonPathPrefix finds the longest shared path prefix, trimmed to the last
// slash so it is a clean directory-style filter.
func commonPathPrefix(links []string) string {
	paths := make([]string, 0, len(links))
	for _, l := range links {
		if u, err := url.Parse(l); err == nil && u.Path != "" {
			paths = append(paths, u.Path)
		} else {
			paths = append(paths, l)
		}
	}
	if len(paths) == 0 {
		return ""
	}

	common := paths[0]
	for _, p := range paths[1:] {
		i := 0
		for i < len(common) && i < len(p) && common[i] == p[i] {
			i++
		}
		common = common[:i]
	}

	if idx := strings.LastIndex(common, "/"); idx > 0 {
		return common[:idx+1]
	}
	return ""
}

// contentSelectors proposes detail-page content regions that actually exist
// on the listing page's markup, with safe defaults otherwise.
func contentSelectors(doc *goquery.Document) []string {
	candidates := []string{
		"article", ".article-content", ".post-content", ".entry-content",
		".content-body", ".news-detail", ".detail", ".content", "main",
	}

	var found []string
	for _, sel := range candidates {
		if doc.Find(sel).Length() > 0 {
			found = append(found, sel)
		}
	}
	if len(found) > 0 {
		return append(found, "main")
	}
	return []string{"article", ".content", "main"}
}
