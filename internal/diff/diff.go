// Package diff produces line-oriented unified diffs between two text
// snapshots.
package diff

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Context is the number of unchanged lines kept around each change.
const Context = 3

// NullLabel is the "from" label used when there is no previous snapshot.
const NullLabel = "/dev/null"

// Unified returns the unified diff of a and b as lines without terminators.
// Identical inputs produce no lines at all, not even headers.
func Unified(a, b []string, fromLabel, toLabel string) []string {
	m := difflib.NewMatcher(a, b)

	var out []string
	for _, group := range m.GetGroupedOpCodes(Context) {
		if out == nil {
			out = append(out, "--- "+fromLabel, "+++ "+toLabel)
		}
		first, last := group[0], group[len(group)-1]
		out = append(out, fmt.Sprintf("@@ -%s +%s @@",
			formatRange(first.I1, last.I2), formatRange(first.J1, last.J2)))

		for _, op := range group {
			if op.Tag == 'e' {
				for _, line := range a[op.I1:op.I2] {
					out = append(out, " "+line)
				}
				continue
			}
			if op.Tag == 'r' || op.Tag == 'd' {
				for _, line := range a[op.I1:op.I2] {
					out = append(out, "-"+line)
				}
			}
			if op.Tag == 'r' || op.Tag == 'i' {
				for _, line := range b[op.J1:op.J2] {
					out = append(out, "+"+line)
				}
			}
		}
	}
	return out
}

// formatRange renders a hunk range the way GNU diff does: a single line is
// just its number, an empty range points at the line before it.
func formatRange(start, stop int) string {
	beginning := start + 1
	length := stop - start
	if length == 1 {
		return strconv.Itoa(beginning)
	}
	if length == 0 {
		beginning--
	}
	return fmt.Sprintf("%d,%d", beginning, length)
}

// IsChange reports whether lines describe a real change: anything beyond the
// two file headers.
func IsChange(lines []string) bool {
	return len(lines) > 2
}

// SplitLines splits text on line breaks. Empty text has no lines, and
// SplitLines(strings.Join(x, "\n")) returns x for any x without embedded
// breaks and not equal to [""].
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
