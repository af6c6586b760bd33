package feeder

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/changewatch/internal/resource"
)

const pageURL = "https://example.com/page"

func newTextDiffFeeder(t *testing.T, res *resource.Resource, dl *fakeDownloader, src Source) Feeder {
	t.Helper()
	f, err := New(TextDiff, res, Deps{Downloader: dl, Now: func() time.Time { return fixedNow }})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f.Add(src)
	return f
}

func TestTextDiff_ChangedLine(t *testing.T) {
	res := resource.New()
	res.SetText(pageURL, "A\nB")
	dl := &fakeDownloader{pages: map[string]string{pageURL: "A\nC\n"}}

	f := newTextDiffFeeder(t, res, dl, Source{Name: "page", URL: pageURL, IgnoreWhiteSpace: true})
	items := collect(t, f)

	evs := events(items)
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Name != "page" || ev.Subject != pageURL+" changes" || ev.HTML {
		t.Errorf("event = %+v", ev)
	}
	lines := strings.Split(ev.Body, "\n")
	if len(lines) < 3 {
		t.Fatalf("diff has %d lines", len(lines))
	}
	for _, want := range []string{" A", "-B", "+C"} {
		if !strings.Contains(ev.Body, "\n"+want) {
			t.Errorf("diff missing %q:\n%s", want, ev.Body)
		}
	}
	if !ev.Date.Equal(fixedNow) {
		t.Errorf("date = %v", ev.Date)
	}

	if got, _ := res.Text(pageURL); got != "A\nC" {
		t.Errorf("snapshot = %q, want A\\nC", got)
	}
	if items[len(items)-1].Kind != KindCheckpoint {
		t.Error("last item is not a checkpoint")
	}
}

func TestTextDiff_FirstRunUsesDevNull(t *testing.T) {
	dl := &fakeDownloader{pages: map[string]string{pageURL: "hello"}}
	f := newTextDiffFeeder(t, nil, dl, Source{Name: "page", URL: pageURL})

	evs := events(collect(t, f))
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if !strings.HasPrefix(evs[0].Body, "--- /dev/null\n+++ "+pageURL) {
		t.Errorf("body = %q", evs[0].Body)
	}
}

func TestTextDiff_NoChangeIdempotent(t *testing.T) {
	res := resource.New()
	dl := &fakeDownloader{pages: map[string]string{pageURL: "line 1\n\nline 3\n"}}
	src := Source{Name: "page", URL: pageURL}

	first := collect(t, newTextDiffFeeder(t, res, dl, src))
	if len(events(first)) != 1 {
		t.Fatalf("first run events = %d, want 1", len(events(first)))
	}

	second := collect(t, newTextDiffFeeder(t, res, dl, src))
	if n := len(events(second)); n != 0 {
		t.Errorf("second run events = %d, want 0", n)
	}
	if count(second, KindCheckpoint) != 1 {
		t.Error("unchanged source still needs a checkpoint")
	}
}

func TestTextDiff_WhitespaceOption(t *testing.T) {
	tests := []struct {
		name       string
		ignore     bool
		wantEvents int
	}{
		{"suppressed", true, 0},
		{"reported", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resource.New()
			res.SetText(pageURL, "alpha beta\ngamma")
			dl := &fakeDownloader{pages: map[string]string{pageURL: "alpha   beta\n  gamma"}}
			f := newTextDiffFeeder(t, res, dl, Source{Name: "p", URL: pageURL, IgnoreWhiteSpace: tt.ignore})

			if n := len(events(collect(t, f))); n != tt.wantEvents {
				t.Errorf("events = %d, want %d", n, tt.wantEvents)
			}
		})
	}
}

func TestTextDiff_FetchErrorKeepsSnapshot(t *testing.T) {
	res := resource.New()
	res.SetText(pageURL, "old")
	other := "https://example.com/other"
	dl := &fakeDownloader{
		pages: map[string]string{other: "new"},
		errs:  map[string]error{pageURL: errors.New("connection refused")},
	}

	f := newTextDiffFeeder(t, res, dl, Source{Name: "broken", URL: pageURL})
	f.Add(Source{Name: "ok", URL: other})
	items := collect(t, f)

	if items[0].Kind != KindError || !strings.Contains(items[0].Err.Error(), pageURL) {
		t.Fatalf("first item = %+v, want error notice", items[0])
	}
	if got, _ := res.Text(pageURL); got != "old" {
		t.Errorf("snapshot of failed source changed to %q", got)
	}
	if len(events(items)) != 1 {
		t.Error("remaining source was not processed")
	}
}

func TestTextDiff_InvalidUTF8(t *testing.T) {
	dl := &fakeDownloader{pages: map[string]string{pageURL: "ok\xff"}}
	res := resource.New()
	f := newTextDiffFeeder(t, res, dl, Source{Name: "p", URL: pageURL})
	collect(t, f)

	if got, _ := res.Text(pageURL); got != "ok\uFFFD" {
		t.Errorf("snapshot = %q", got)
	}
}

func TestTextDiff_StopsWhenConsumerStops(t *testing.T) {
	dl := &fakeDownloader{pages: map[string]string{pageURL: "x", "https://b": "y"}}
	f := newTextDiffFeeder(t, nil, dl, Source{Name: "a", URL: pageURL})
	f.Add(Source{Name: "b", URL: "https://b"})

	n := 0
	for range f.Items(t.Context()) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("consumed %d items", n)
	}
	if _, ok := f.Resource().Text(pageURL); ok {
		t.Error("snapshot written although the event was never acknowledged")
	}
}

func TestHTMLDiff_LinkChange(t *testing.T) {
	res := resource.New()
	dl := &fakeDownloader{pages: map[string]string{
		pageURL: `<html><body><p>Download <a href="/v1.tar.gz">here</a></p></body></html>`,
	}}
	f, err := New(HTMLDiff, res, Deps{Downloader: dl})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f.Add(Source{Name: "dl", URL: pageURL, IgnoreWhiteSpace: true})
	collect(t, f)

	dl.pages[pageURL] = `<html><body><p>Download <a href="/v2.tar.gz">here</a></p></body></html>`
	f2, _ := New(HTMLDiff, res, Deps{Downloader: dl})
	f2.Add(Source{Name: "dl", URL: pageURL, IgnoreWhiteSpace: true})

	evs := events(collect(t, f2))
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1 for a link-only change", len(evs))
	}
	if !strings.Contains(evs[0].Body, "+Download here (https://example.com/v2.tar.gz)") {
		t.Errorf("body = %s", evs[0].Body)
	}
}
