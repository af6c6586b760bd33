package feeder

import (
	"context"
	"errors"
	"fmt"
	"html"
	"iter"
	"strings"
	"time"

	"github.com/ppiankov/changewatch/internal/resource"
	"github.com/ppiankov/changewatch/internal/source"
)

// rssFeeder emits one event per feed entry it has not seen before.
type rssFeeder struct {
	base
	deps Deps
}

func newRSS(res *resource.Resource, deps Deps) (Feeder, error) {
	if deps.Parser == nil {
		return nil, errors.New("rss: feed parser is required")
	}
	return &rssFeeder{base: newBase(RSS, res), deps: deps}, nil
}

// Items yields no checkpoints. A source's seen-set is written back only once
// the whole feed was walked, so an interrupted feed is re-read in full next
// time; dedup makes that harmless.
func (f *rssFeeder) Items(ctx context.Context) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, src := range f.sources {
			entries, err := f.deps.Parser.Parse(ctx, src.URL)
			if err != nil {
				if !yield(ErrorItem(fmt.Errorf("error from feed %s: %w", src.Name, err))) {
					return
				}
				continue
			}

			seen := f.res.Seen(src.URL)
			for _, e := range entries {
				id := source.EntryID(e)
				if seen.Has(id) {
					continue
				}
				seen.Add(id)
				if !yield(EventItem(entryEvent(src, e, f.deps.now()))) {
					return
				}
			}
			f.res.SetSeen(src.URL, seen)
		}
	}
}

// entryEvent renders a single entry: title, permalink, content and the first
// enclosure, if any. Entries without a date are stamped with detected.
func entryEvent(src Source, e source.Entry, detected time.Time) Event {
	var b strings.Builder
	b.WriteString(entryHeader(e.Title, []string{e.Link}))
	b.WriteString(e.Content)
	if len(e.Enclosures) > 0 {
		b.WriteString(anchor(e.Enclosures[0]))
	}

	date := e.Published
	if date.IsZero() {
		date = detected
	}
	return Event{
		Name:    src.Name,
		Subject: e.Title,
		Body:    b.String(),
		Date:    date,
		HTML:    true,
	}
}

// entryHeader renders the bold title with its links underneath.
func entryHeader(title string, links []string) string {
	anchors := make([]string, 0, len(links))
	for _, l := range links {
		if l == "" {
			continue
		}
		anchors = append(anchors, anchor(l))
	}
	return fmt.Sprintf(`<p><b>%s</b><br/><font size="-1">%s</font></p>`,
		html.EscapeString(title), strings.Join(anchors, "<br/>"))
}

func anchor(link string) string {
	esc := html.EscapeString(link)
	return fmt.Sprintf(`<a href="%s">%s</a>`, esc, esc)
}
