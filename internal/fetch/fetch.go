// Package fetch pulls readable article text for link posts.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// maxBody caps how much of a page is read before extraction.
const maxBody = 5 << 20

// Hosts whose links point back at the content source or at bare media.
var skipHosts = []string{"reddit.com", "redd.it", "imgur.com", "youtube.com", "youtu.be", "gfycat.com"}

var mediaExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".gifv": true,
	".webp": true, ".mp4": true, ".webm": true, ".pdf": true,
}

// HTTPError is returned for responses with status >= 400.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, http.StatusText(e.Code))
}

// Extractor fetches a page and returns its readability text content.
// Hosts that answered with an HTTP error are not retried until Reset.
type Extractor struct {
	client    *http.Client
	userAgent string
	minLength int

	mu            sync.Mutex
	failedDomains map[string]struct{}
}

// NewExtractor creates an extractor with the given request timeout.
func NewExtractor(timeout time.Duration, userAgent string) *Extractor {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "reelsmith/2.0"
	}
	return &Extractor{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:     userAgent,
		minLength:     100,
		failedDomains: make(map[string]struct{}),
	}
}

// Reset forgets hosts that failed during the previous run.
func (e *Extractor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failedDomains = make(map[string]struct{})
}

// Eligible reports whether a link is worth extracting.
func Eligible(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range skipHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return false
		}
	}
	return !mediaExts[strings.ToLower(path.Ext(u.Path))]
}

// Extract returns the readable text of rawURL, or "" when the page has
// too little text. Ineligible links return "" without a request.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	if !Eligible(rawURL) {
		return "", nil
	}
	u, _ := url.Parse(rawURL)
	domain := strings.ToLower(u.Host)

	e.mu.Lock()
	_, failed := e.failedDomains[domain]
	e.mu.Unlock()
	if failed {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		e.mu.Lock()
		e.failedDomains[domain] = struct{}{}
		e.mu.Unlock()
		return "", &HTTPError{Code: resp.StatusCode}
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxBody), u)
	if err != nil {
		return "", fmt.Errorf("extracting %s: %w", rawURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < e.minLength {
		return "", nil
	}
	return text, nil
}
