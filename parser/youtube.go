package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

var (
	channelIDRe     = regexp.MustCompile(`/channel/(UC[a-zA-Z0-9_-]+)`)
	externalIDRe    = regexp.MustCompile(`"externalId":"(UC[a-zA-Z0-9_-]+)"`)
	channelParamRe  = regexp.MustCompile(`channel_id=(UC[a-zA-Z0-9_-]+)`)
	videoIDRe       = regexp.MustCompile(`(?:v=|/embed/|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	channelSuffixRe = regexp.MustCompile(`/(shorts|videos|streams|playlists)/?$`)
)

// YouTubeParser lists a channel's videos via YouTube's per-channel feed.
// The source URL may be any channel reference (@handle, /channel/ID,
// /c/name, /user/name, or the feed URL itself); it is resolved to the
// canonical feed URL before parsing.
type YouTubeParser struct {
	fp *gofeed.Parser
}

// NewYouTubeParser creates the channel-feed adapter.
func NewYouTubeParser() *YouTubeParser {
	return &YouTubeParser{fp: gofeed.NewParser()}
}

// FetchItemList resolves the channel reference and parses its video feed.
func (p *YouTubeParser) FetchItemList(ctx context.Context, url string, _ *Config) ([]Item, error) {
	feedURL, err := p.resolveFeedURL(ctx, url)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", feedUserAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: channel feed returned HTTP %d", ErrFetch, resp.StatusCode)
	}

	feed, err := p.fp.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse channel feed: %v", ErrExtraction, err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		videoID := extValue(fi.Extensions, "yt", "videoId")
		title := strings.TrimSpace(fi.Title)
		if videoID == "" || title == "" {
			continue
		}

		thumbnail := mediaThumbnail(fi.Extensions)
		if thumbnail == "" {
			thumbnail = "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
		}
		description := capRunes(mediaDescription(fi.Extensions), 300)

		item := Item{
			ExternalURL: "https://www.youtube.com/watch?v=" + videoID,
			Title:       title,
			Snippet:     EncodeSnippetImage(thumbnail, description),
		}
		if fi.PublishedParsed != nil {
			t := *fi.PublishedParsed
			item.PublishedAt = &t
		}
		items = append(items, item)
	}
	return items, nil
}

// FetchItemContent reads the watch page's OpenGraph metadata; the feed is
// already the richer source for listing, so content is title plus
// description with a thumbnail fallback chain.
func (p *YouTubeParser) FetchItemContent(ctx context.Context, url string) (*Content, error) {
	var videoID string
	if m := videoIDRe.FindStringSubmatch(url); m != nil {
		videoID = m[1]
	}

	var title, description, imageURL string
	if doc, err := fetchDocument(ctx, url, nil); err == nil {
		title = firstAttrOf(doc, `meta[property="og:title"]`, "content")
		if title == "" {
			title = collapseSpace(doc.Find("title").Text())
		}
		description = firstAttrOf(doc, `meta[property="og:description"]`, "content")
		if description == "" {
			description = firstAttrOf(doc, `meta[name="description"]`, "content")
		}
		imageURL = firstAttrOf(doc, `meta[property="og:image"]`, "content")
	}

	if imageURL == "" && videoID != "" {
		imageURL = "https://i.ytimg.com/vi/" + videoID + "/maxresdefault.jpg"
	}

	var parts []string
	if title != "" {
		parts = append(parts, "動画タイトル: "+title)
	}
	if description != "" {
		parts = append(parts, "説明: "+description)
	}

	text := strings.Join(parts, "\n\n")
	if text == "" {
		text = "YouTube動画"
	}
	return &Content{Text: capRunes(text, maxContentRunes), ImageURL: imageURL}, nil
}

// resolveFeedURL converts any channel reference to the canonical feed URL.
// Direct feed URLs and /channel/UC... references resolve without a network
// round trip; handles and vanity paths need one page fetch to scrape the
// channel's internal ID.
func (p *YouTubeParser) resolveFeedURL(ctx context.Context, url string) (string, error) {
	if strings.Contains(url, "/feeds/videos.xml") {
		return url, nil
	}
	if m := channelIDRe.FindStringSubmatch(url); m != nil {
		return "https://www.youtube.com/feeds/videos.xml?channel_id=" + m[1], nil
	}

	pageURL := channelSuffixRe.ReplaceAllString(url, "")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: channel page returned HTTP %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	m := externalIDRe.FindSubmatch(body)
	if m == nil {
		m = channelParamRe.FindSubmatch(body)
	}
	if m == nil {
		return "", fmt.Errorf("%w: channel ID not found on page %s", ErrExtraction, pageURL)
	}
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + string(m[1]), nil
}

// extValue reads a single extension element value, e.g. yt:videoId.
func extValue(exts ext.Extensions, ns, name string) string {
	for _, e := range exts[ns][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// mediaThumbnail digs the thumbnail URL out of the media:group extension.
func mediaThumbnail(exts ext.Extensions) string {
	for _, group := range exts["media"]["group"] {
		for _, thumb := range group.Children["thumbnail"] {
			if u := thumb.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}

// mediaDescription digs the video description out of media:group.
func mediaDescription(exts ext.Extensions) string {
	for _, group := range exts["media"]["group"] {
		for _, d := range group.Children["description"] {
			if v := strings.TrimSpace(d.Value); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstAttrOf(doc *goquery.Document, selector, attr string) string {
	v, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(v)
}
