package feeder

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ppiankov/changewatch/internal/resource"
)

// Variant names, as written in the feed configuration.
const (
	HTMLDiff   = "htmldiff"
	TextDiff   = "diff"
	RSS        = "rss"
	RSSSummary = "rsssummary"
)

// ErrUnknownFeeder is returned by New for a name with no registered variant.
var ErrUnknownFeeder = errors.New("unknown feeder")

// Constructor builds a feeder around its previously persisted resource.
type Constructor func(res *resource.Resource, deps Deps) (Feeder, error)

var registry = map[string]Constructor{
	HTMLDiff:   newHTMLDiff,
	TextDiff:   newTextDiff,
	RSS:        newRSS,
	RSSSummary: newRSSSummary,
}

// New builds the feeder registered under name.
func New(name string, res *resource.Resource, deps Deps) (Feeder, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownFeeder, name)
	}
	return ctor(res, deps)
}

// Known reports whether name is a registered variant.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Variants lists registered variant names in sorted order.
func Variants() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
