package feeder

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/ppiankov/changewatch/internal/diff"
	"github.com/ppiankov/changewatch/internal/extract"
	"github.com/ppiankov/changewatch/internal/resource"
)

// pageDiff watches pages for textual changes. The two variants differ only
// in how a download becomes lines.
type pageDiff struct {
	base
	deps  Deps
	lines func(raw []byte, url string) ([]string, error)
}

func newHTMLDiff(res *resource.Resource, deps Deps) (Feeder, error) {
	if deps.Downloader == nil {
		return nil, errors.New("htmldiff: downloader is required")
	}
	return &pageDiff{base: newBase(HTMLDiff, res), deps: deps, lines: extract.Lines}, nil
}

func newTextDiff(res *resource.Resource, deps Deps) (Feeder, error) {
	if deps.Downloader == nil {
		return nil, errors.New("diff: downloader is required")
	}
	return &pageDiff{base: newBase(TextDiff, res), deps: deps, lines: plainLines}, nil
}

func plainLines(raw []byte, _ string) ([]string, error) {
	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	return diff.SplitLines(strings.TrimSpace(text)), nil
}

func (f *pageDiff) Items(ctx context.Context) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, src := range f.sources {
			if !f.process(ctx, src, yield) {
				return
			}
		}
	}
}

// process diffs one source. The snapshot is replaced and a checkpoint
// yielded after every successfully fetched source, whether or not it changed.
func (f *pageDiff) process(ctx context.Context, src Source, yield func(Item) bool) bool {
	var old []string
	oldLabel := diff.NullLabel
	if text, ok := f.res.Text(src.URL); ok {
		old = diff.SplitLines(text)
		oldLabel = src.URL
	}

	cur, err := f.fetch(ctx, src.URL)
	if err != nil {
		return yield(ErrorItem(fmt.Errorf("error while loading %s: %w", src.URL, err)))
	}

	lines := diff.Unified(old, cur, oldLabel, src.URL)
	if src.IgnoreWhiteSpace {
		lines = diff.SuppressWhitespace(lines)
	}
	if diff.IsChange(lines) {
		ev := Event{
			Name:    src.Name,
			Subject: src.URL + " changes",
			Body:    strings.Join(lines, "\n"),
			Date:    f.deps.now(),
		}
		if !yield(EventItem(ev)) {
			return false
		}
	}

	f.res.SetText(src.URL, strings.Join(cur, "\n"))
	return yield(CheckpointItem())
}

func (f *pageDiff) fetch(ctx context.Context, url string) ([]string, error) {
	raw, err := f.deps.Downloader.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	return f.lines(raw, url)
}
