package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Parser downloads and parses RSS/Atom feeds.
type Parser struct {
	dl Downloader
}

// NewParser creates a feed parser that fetches through dl.
func NewParser(dl Downloader) (*Parser, error) {
	if dl == nil {
		return nil, errors.New("rss: downloader is required")
	}
	return &Parser{dl: dl}, nil
}

// Parse fetches feedURL and returns its entries in feed order.
func (p *Parser) Parse(ctx context.Context, feedURL string) ([]Entry, error) {
	raw, err := p.dl.Download(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feedURL, err)
	}
	return ParseBytes(raw)
}

// ParseBytes parses an already downloaded feed body.
func ParseBytes(raw []byte) ([]Entry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return entriesFromFeed(feed), nil
}

func entriesFromFeed(feed *gofeed.Feed) []Entry {
	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, Entry{
			ID:         strings.TrimSpace(item.GUID),
			Title:      item.Title,
			Link:       item.Link,
			Published:  itemPublishedTime(item),
			Content:    itemContent(item),
			Enclosures: itemEnclosures(item),
		})
	}
	return entries
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

func itemEnclosures(item *gofeed.Item) []string {
	var urls []string
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			urls = append(urls, enc.URL)
		}
	}
	return urls
}
