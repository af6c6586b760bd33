package feeder

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/ppiankov/changewatch/internal/resource"
	"github.com/ppiankov/changewatch/internal/source"
)

var (
	imgRe       = regexp.MustCompile(`<img.*?/>`)
	emptyLinkRe = regexp.MustCompile(`<a\s[^>]*></a>`)
	brRunRe     = regexp.MustCompile(`<br\s*/?>(\s*<br\s*/?>)+`)
)

const summaryTimeLayout = "2006-01-02 15:04"

// rssSummary folds all new entries of a feed into a single HTML digest.
type rssSummary struct {
	base
	deps Deps
}

func newRSSSummary(res *resource.Resource, deps Deps) (Feeder, error) {
	if deps.Parser == nil {
		return nil, errors.New("rsssummary: feed parser is required")
	}
	return &rssSummary{base: newBase(RSSSummary, res), deps: deps}, nil
}

func (f *rssSummary) Items(ctx context.Context) iter.Seq[Item] {
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
			body := summarize(src, entries, seen)
			f.res.SetSeen(src.URL, seen)

			if body == "" {
				continue
			}
			now := f.deps.now()
			ev := Event{
				Name:    src.Name,
				Subject: fmt.Sprintf("%s summary (%s)", src.Name, now.Format(summaryTimeLayout)),
				Body:    body,
				Date:    now,
				HTML:    true,
			}
			if !yield(EventItem(ev)) {
				return
			}
		}
	}
}

// summarize renders every entry missing from seen and adds it to seen.
// It returns "" when there was nothing new.
func summarize(src Source, entries []source.Entry, seen resource.SeenSet) string {
	var b strings.Builder
	for _, e := range entries {
		id := source.EntryID(e)
		if seen.Has(id) {
			continue
		}
		seen.Add(id)

		links := append([]string{e.Link}, e.Enclosures...)
		b.WriteString(entryHeader(e.Title, links))
		if src.Description {
			b.WriteString(e.Content)
		}
		b.WriteString("<hr/>")
	}

	body := b.String()
	if src.StripImages {
		body = imgRe.ReplaceAllString(body, "")
	}
	if src.StripEmptyLinks {
		body = emptyLinkRe.ReplaceAllString(body, "")
	}
	if src.DedupeBRs {
		body = brRunRe.ReplaceAllString(body, "<br/>")
	}
	return body
}
