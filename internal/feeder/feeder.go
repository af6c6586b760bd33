// Package feeder turns watched sources into a stream of change events.
//
// A Feeder owns a group of sources of one kind and the resource holding
// their previous state. Items walks every source once and yields, in order,
// events for detected changes, error notices for sources that could not be
// processed, and checkpoints whenever the resource is consistent enough to
// persist.
package feeder

import (
	"context"
	"iter"
	"time"

	"github.com/ppiankov/changewatch/internal/resource"
	"github.com/ppiankov/changewatch/internal/source"
)

// Event is one detected change, destined for the notification sink.
type Event struct {
	Name    string    // source name
	Subject string    // one-line summary
	Body    string    // plain text diff or HTML
	Date    time.Time // when the change happened, or when it was detected
	HTML    bool      // Body is markup
	Files   []string  // paths to attach
}

// Kind tags an Item.
type Kind int

const (
	KindEvent Kind = iota
	KindError
	KindCheckpoint
)

// Item is a single element of a feeder's output.
type Item struct {
	Kind  Kind
	Event Event // set for KindEvent
	Err   error // set for KindError
}

// EventItem wraps ev.
func EventItem(ev Event) Item { return Item{Kind: KindEvent, Event: ev} }

// ErrorItem wraps a source-level failure.
func ErrorItem(err error) Item { return Item{Kind: KindError, Err: err} }

// CheckpointItem asks the consumer to persist the feeder's resource.
func CheckpointItem() Item { return Item{Kind: KindCheckpoint} }

// Source is one watched URL and its options.
type Source struct {
	Name             string
	URL              string
	IgnoreWhiteSpace bool
	Description      bool
	StripImages      bool
	StripEmptyLinks  bool
	DedupeBRs        bool
	Blacklist        []string
}

// Feeder produces items for the sources added to it.
type Feeder interface {
	// Name returns the variant name, which is also the key its resource is
	// stored under.
	Name() string
	// Add registers a source. Sources are processed in the order added.
	Add(src Source)
	Sources() []Source
	// Items returns a single-pass sequence over all sources.
	Items(ctx context.Context) iter.Seq[Item]
	// Resource returns the state the feeder reads and updates.
	Resource() *resource.Resource
}

// Downloader fetches raw bytes.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// FeedParser fetches and parses a feed.
type FeedParser interface {
	Parse(ctx context.Context, url string) ([]source.Entry, error)
}

// Deps are the collaborators feeders are built with.
type Deps struct {
	Downloader Downloader
	Parser     FeedParser
	Now        func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

type base struct {
	name    string
	res     *resource.Resource
	sources []Source
}

func newBase(name string, res *resource.Resource) base {
	if res == nil {
		res = resource.New()
	}
	return base{name: name, res: res}
}

func (b *base) Name() string                 { return b.name }
func (b *base) Add(src Source)               { b.sources = append(b.sources, src) }
func (b *base) Resource() *resource.Resource { return b.res }

func (b *base) Sources() []Source {
	out := make([]Source, len(b.sources))
	copy(out, b.sources)
	return out
}
