package feeder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/changewatch/internal/source"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type fakeDownloader struct {
	pages map[string]string
	errs  map[string]error
}

func (f *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(body), nil
}

type fakeParser struct {
	feeds map[string][]source.Entry
	errs  map[string]error
}

func (f *fakeParser) Parse(_ context.Context, url string) ([]source.Entry, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.feeds[url], nil
}

func collect(t *testing.T, f Feeder) []Item {
	t.Helper()
	var items []Item
	for it := range f.Items(context.Background()) {
		items = append(items, it)
	}
	return items
}

func events(items []Item) []Event {
	var evs []Event
	for _, it := range items {
		if it.Kind == KindEvent {
			evs = append(evs, it.Event)
		}
	}
	return evs
}

func count(items []Item, k Kind) int {
	n := 0
	for _, it := range items {
		if it.Kind == k {
			n++
		}
	}
	return n
}

func TestRegistry(t *testing.T) {
	deps := Deps{Downloader: &fakeDownloader{}, Parser: &fakeParser{}}
	for _, name := range Variants() {
		f, err := New(name, nil, deps)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if f.Name() != name {
			t.Errorf("Name() = %q, want %q", f.Name(), name)
		}
		if f.Resource() == nil {
			t.Errorf("%s: nil resource", name)
		}
	}

	_, err := New("twitter", nil, deps)
	if !errors.Is(err, ErrUnknownFeeder) {
		t.Errorf("err = %v, want ErrUnknownFeeder", err)
	}
	if !Known("rss") || Known("twitter") {
		t.Error("Known mismatch")
	}
	if got := strings.Join(Variants(), ","); got != "diff,htmldiff,rss,rsssummary" {
		t.Errorf("Variants = %s", got)
	}
}

func TestRegistry_MissingDeps(t *testing.T) {
	for _, name := range Variants() {
		if _, err := New(name, nil, Deps{}); err == nil {
			t.Errorf("New(%q) with no deps: expected error", name)
		}
	}
}

func TestSourcesReturnsCopy(t *testing.T) {
	f, _ := New(RSS, nil, Deps{Parser: &fakeParser{}})
	f.Add(Source{Name: "a"})
	got := f.Sources()
	got[0].Name = "changed"
	if f.Sources()[0].Name != "a" {
		t.Error("Sources exposes internal slice")
	}
}
