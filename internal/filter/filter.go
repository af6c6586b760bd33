package filter

import (
	"errors"
	"fmt"
	"regexp"
)

// Blacklist holds the valid patterns of one source. Invalid patterns are
// skipped and reported through Err.
type Blacklist struct {
	patterns []*regexp.Regexp
	errs     []error
}

func NewBlacklist(patterns []string) *Blacklist {
	b := &Blacklist{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("compile blacklist pattern %q: %w", p, err))
			continue
		}
		b.patterns = append(b.patterns, re)
	}
	return b
}

// Match reports the first pattern found in subject.
func (b *Blacklist) Match(subject string) (string, bool) {
	if b == nil {
		return "", false
	}
	for _, re := range b.patterns {
		if re.MatchString(subject) {
			return re.String(), true
		}
	}
	return "", false
}

// Err joins the compile errors of all invalid patterns, or returns nil.
func (b *Blacklist) Err() error {
	if b == nil {
		return nil
	}
	return errors.Join(b.errs...)
}
