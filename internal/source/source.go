// Package source parses RSS/Atom feeds into entries.
package source

import (
	"context"
	"time"
)

// Entry is a single item of a feed.
type Entry struct {
	ID         string    // feed-native unique id, may be empty
	Title      string    // entry title
	Link       string    // permalink
	Published  time.Time // publication (or last update) timestamp, zero if unknown
	Content    string    // body markup
	Enclosures []string  // enclosure URLs
}

// Downloader fetches raw bytes for a URL.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// EntryID returns the identifier used to deduplicate e: the feed-native id,
// else the title. Entries without an id that share a title collapse into
// one; that approximation is deliberate, changing it would re-announce or
// hide entries for existing users.
func EntryID(e Entry) string {
	if e.ID != "" {
		return e.ID
	}
	return e.Title
}
