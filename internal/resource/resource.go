// Package resource holds the per-feeder state a feeder diffs or deduplicates
// against: one snapshot per source URL.
package resource

import (
	"encoding/json"
	"slices"
)

// Kind says which of the two snapshot forms a URL holds.
type Kind string

const (
	KindText Kind = "text"
	KindSeen Kind = "seen"
)

// Snapshot is the prior state of one source. Exactly one of Text or Seen is
// meaningful, selected by Kind.
type Snapshot struct {
	Kind Kind    `json:"kind"`
	Text string  `json:"text,omitempty"`
	Seen SeenSet `json:"seen,omitempty"`
}

// Resource maps source URL to snapshot. It is not safe for concurrent use;
// the runner and the feeder it lends the resource to never touch it at the
// same time.
type Resource struct {
	snapshots map[string]Snapshot
}

// New returns an empty resource.
func New() *Resource {
	return &Resource{snapshots: make(map[string]Snapshot)}
}

// Text returns the stored text for url. ok is false when nothing is stored or
// the URL holds a seen-set.
func (r *Resource) Text(url string) (string, bool) {
	s, ok := r.snapshots[url]
	if !ok || s.Kind != KindText {
		return "", false
	}
	return s.Text, true
}

// SetText replaces the snapshot for url with text.
func (r *Resource) SetText(url, text string) {
	r.snapshots[url] = Snapshot{Kind: KindText, Text: text}
}

// Seen returns a copy of the seen-set stored for url, or an empty set.
// Callers mutate the copy and hand it back through SetSeen.
func (r *Resource) Seen(url string) SeenSet {
	s, ok := r.snapshots[url]
	if !ok || s.Kind != KindSeen {
		return NewSeenSet()
	}
	return s.Seen.Clone()
}

// SetSeen replaces the snapshot for url with seen.
func (r *Resource) SetSeen(url string, seen SeenSet) {
	if seen == nil {
		seen = NewSeenSet()
	}
	r.snapshots[url] = Snapshot{Kind: KindSeen, Seen: seen.Clone()}
}

// Get returns the raw snapshot for url.
func (r *Resource) Get(url string) (Snapshot, bool) {
	s, ok := r.snapshots[url]
	return s, ok
}

// Len returns the number of stored snapshots.
func (r *Resource) Len() int {
	return len(r.snapshots)
}

// URLs returns the stored URLs in sorted order.
func (r *Resource) URLs() []string {
	urls := make([]string, 0, len(r.snapshots))
	for u := range r.snapshots {
		urls = append(urls, u)
	}
	slices.Sort(urls)
	return urls
}

// Clone returns a deep copy of r.
func (r *Resource) Clone() *Resource {
	c := New()
	for u, s := range r.snapshots {
		if s.Kind == KindSeen {
			s.Seen = s.Seen.Clone()
		}
		c.snapshots[u] = s
	}
	return c
}

// SeenSet is a set of previously seen entry identifiers.
type SeenSet map[string]struct{}

// NewSeenSet returns a set holding ids.
func NewSeenSet(ids ...string) SeenSet {
	s := make(SeenSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s SeenSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s SeenSet) Add(id string) {
	s[id] = struct{}{}
}

func (s SeenSet) Len() int {
	return len(s)
}

func (s SeenSet) Clone() SeenSet {
	c := make(SeenSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Sorted returns the identifiers in sorted order.
func (s SeenSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MarshalJSON encodes the set as a sorted array so blobs are stable.
func (s SeenSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *SeenSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSeenSet(ids...)
	return nil
}
