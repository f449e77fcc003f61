package collect

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/reelsmith/internal/config"
)

// FeedSource treats each RSS/Atom feed as a channel. Feeds have no
// comments and no engagement counts.
type FeedSource struct {
	feeds  map[string]string // channel name -> feed URL
	parser *gofeed.Parser
	now    func() time.Time
}

// NewFeedSource builds a source from configured feeds. A feed without a
// name is named after its host.
func NewFeedSource(feeds []config.Feed) *FeedSource {
	fs := &FeedSource{
		feeds:  make(map[string]string, len(feeds)),
		parser: gofeed.NewParser(),
		now:    time.Now,
	}
	for _, f := range feeds {
		name := f.Name
		if name == "" {
			name = extractSourceName(f.URL)
		}
		fs.feeds[name] = f.URL
	}
	return fs
}

func (s *FeedSource) Name() string { return "feed" }

// Channels returns the configured feed names.
func (s *FeedSource) Channels() []string {
	names := make([]string, 0, len(s.feeds))
	for name := range s.feeds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Listing returns the newest items for SortHot and the items of the last
// 24 hours for SortTopDay.
func (s *FeedSource) Listing(ctx context.Context, channel string, sort Sort, limit int) ([]Post, error) {
	feedURL, ok := s.feeds[channel]
	if !ok {
		return nil, fmt.Errorf("unknown feed channel %q", channel)
	}
	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	cutoff := s.now().Add(-24 * time.Hour)
	var posts []Post
	for _, item := range feed.Items {
		if len(posts) >= limit {
			break
		}
		p, ok := parseItem(item, channel)
		if !ok {
			continue
		}
		if sort == SortTopDay && !p.CreatedUTC.IsZero() && p.CreatedUTC.Before(cutoff) {
			continue
		}
		posts = append(posts, p)
	}
	return posts, nil
}

// TopComments is empty for feeds.
func (s *FeedSource) TopComments(context.Context, string, int) ([]Comment, error) {
	return nil, nil
}

func parseItem(item *gofeed.Item, channel string) (Post, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return Post{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return Post{}, false
	}

	var created time.Time
	if item.PublishedParsed != nil {
		created = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		created = item.UpdatedParsed.UTC()
	}

	var body string
	if item.Content != "" {
		body = htmlToText(item.Content)
	} else if item.Description != "" {
		body = htmlToText(item.Description)
	}

	var author string
	if item.Author != nil {
		author = item.Author.Name
	}

	return Post{
		ID:         feedItemID(itemURL),
		Channel:    channel,
		Title:      title,
		Author:     author,
		CreatedUTC: created,
		URL:        itemURL,
		SelfText:   body,
		Permalink:  itemURL,
		IsSelf:     body != "",
	}, true
}

// feedItemID derives a stable id from the item link so re-reads dedup.
func feedItemID(link string) string {
	id := strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceURL, []byte(link)).String(), "-", "")
	return "feed_" + id[:16]
}

// htmlToText extracts the visible text of an HTML fragment.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
