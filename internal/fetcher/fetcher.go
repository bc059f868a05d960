// Package fetcher handles feed downloading and parsing into raw entries.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

const userAgent = "RSSHub/1.0"

// maxBodySize caps how much of a feed response is read.
const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NetworkError reports a transport failure or a non-2xx response.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError reports a malformed feed document.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Enclosure is a media attachment declared by a feed entry.
type Enclosure struct {
	URL  string
	Type string
}

// RawEntry is one item of a fetched feed document, prior to
// normalization into an Article.
type RawEntry struct {
	Title        string
	Link         string
	Author       string
	Authors      []string
	Contributors []string
	Published    *time.Time
	Updated      *time.Time
	Content      string
	Description  string
	Enclosures   []Enclosure
}

// Fetcher downloads and parses syndication feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client and a 30-second
// per-request timeout.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// SetTimeout overrides the per-request timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// Fetch downloads and parses the feed at url, bounded by the
// per-request timeout. Failures are classified as *NetworkError or
// *ParseError; both are fatal to this invocation and never retried
// here.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]RawEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}

	entries := make([]RawEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, toRawEntry(item))
	}
	return entries, nil
}

func toRawEntry(item *gofeed.Item) RawEntry {
	entry := RawEntry{
		Title:       item.Title,
		Link:        item.Link,
		Content:     item.Content,
		Description: item.Description,
		Published:   item.PublishedParsed,
		Updated:     item.UpdatedParsed,
	}

	if item.Author != nil {
		entry.Author = item.Author.Name
	}
	for _, p := range item.Authors {
		if p != nil && p.Name != "" {
			entry.Authors = append(entry.Authors, p.Name)
		}
	}
	if item.DublinCoreExt != nil {
		for _, c := range item.DublinCoreExt.Contributor {
			if c != "" {
				entry.Contributors = append(entry.Contributors, c)
			}
		}
	}
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		entry.Enclosures = append(entry.Enclosures, Enclosure{URL: enc.URL, Type: enc.Type})
	}
	return entry
}
