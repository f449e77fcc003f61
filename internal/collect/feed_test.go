package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/reelsmith/internal/config"
)

const rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Test</title><link>https://example.com</link>
<item><title>Fresh story</title><link>https://example.com/fresh</link>
<description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt; &amp;amp; friends&lt;/p&gt;</description>
<pubDate>%s</pubDate></item>
<item><title>Old story</title><link>https://example.com/old</link>
<description>Old news</description>
<pubDate>%s</pubDate></item>
<item><title></title><link>https://example.com/untitled</link></item>
</channel></rss>`

func TestFeedSourceListing(t *testing.T) {
	now := time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC)
	body := fmt.Sprintf(rssTemplate,
		now.Add(-2*time.Hour).Format(time.RFC1123Z),
		now.Add(-72*time.Hour).Format(time.RFC1123Z))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	src := NewFeedSource([]config.Feed{{URL: srv.URL, Name: "Example"}})
	src.now = func() time.Time { return now }

	hot, err := src.Listing(context.Background(), "Example", SortHot, 10)
	require.NoError(t, err)
	require.Len(t, hot, 2)
	assert.Equal(t, "Fresh story", hot[0].Title)
	assert.Equal(t, "Hello world & friends", hot[0].SelfText)
	assert.True(t, strings.HasPrefix(hot[0].ID, "feed_"))
	assert.Equal(t, "Example", hot[0].Channel)

	top, err := src.Listing(context.Background(), "Example", SortTopDay, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, hot[0].ID, top[0].ID, "ids are stable across reads")

	_, err = src.Listing(context.Background(), "Nope", SortHot, 10)
	assert.Error(t, err)

	comments, err := src.TopComments(context.Background(), hot[0].ID, 10)
	assert.NoError(t, err)
	assert.Empty(t, comments)
}

func TestExtractSourceName(t *testing.T) {
	assert.Equal(t, "Example", extractSourceName("https://blog.example.com/feed.xml"))
	assert.Equal(t, "Localhost", extractSourceName("http://localhost:8080/rss"))
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "a b c", htmlToText("<div>a <script>var x;</script><span>b</span>\n c</div>"))
}
