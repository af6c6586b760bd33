package diff

import "strings"

// SuppressWhitespace removes noise caused by reflowed or reindented content.
// Within each hunk it drops added or removed lines that are blank. Inside a
// block of removed lines followed by their replacements, the n-th removed
// and n-th added line are dropped when equal once all whitespace is removed. Hunks
// left without a change line are dropped entirely. When nothing survives,
// only the file headers remain, so IsChange reports false.
func SuppressWhitespace(lines []string) []string {
	if len(lines) < 2 {
		return lines
	}

	out := make([]string, 0, len(lines))
	body := lines
	if strings.HasPrefix(lines[0], "--- ") && strings.HasPrefix(lines[1], "+++ ") {
		out = append(out, lines[0], lines[1])
		body = lines[2:]
	}

	for _, hunk := range splitHunks(body) {
		if kept, ok := filterHunk(hunk); ok {
			out = append(out, kept...)
		}
	}
	return out
}

// splitHunks groups lines so that each group starts at an "@@" header.
// Lines before the first header form a group of their own.
func splitHunks(lines []string) [][]string {
	var hunks [][]string
	var cur []string
	for _, l := range lines {
		if strings.HasPrefix(l, "@@") && cur != nil {
			hunks = append(hunks, cur)
			cur = nil
		}
		cur = append(cur, l)
	}
	if cur != nil {
		hunks = append(hunks, cur)
	}
	return hunks
}

func filterHunk(hunk []string) ([]string, bool) {
	drop := make([]bool, len(hunk))

	for i := 0; i < len(hunk); {
		if !isChangeLine(hunk[i]) {
			i++
			continue
		}
		// A change block is a run of removed lines directly followed by the
		// added lines that replace them.
		var removed, added []int
		for ; i < len(hunk) && strings.HasPrefix(hunk[i], "-"); i++ {
			removed = appendNonBlank(removed, drop, hunk, i)
		}
		for ; i < len(hunk) && strings.HasPrefix(hunk[i], "+"); i++ {
			added = appendNonBlank(added, drop, hunk, i)
		}
		for k := 0; k < len(removed) && k < len(added); k++ {
			if collapse(hunk[removed[k]][1:]) == collapse(hunk[added[k]][1:]) {
				drop[removed[k]] = true
				drop[added[k]] = true
			}
		}
	}

	kept := make([]string, 0, len(hunk))
	changed := false
	for i, l := range hunk {
		if drop[i] {
			continue
		}
		if isChangeLine(l) {
			changed = true
		}
		kept = append(kept, l)
	}
	return kept, changed
}

// appendNonBlank marks whitespace-only change lines for dropping and
// collects the others.
func appendNonBlank(idx []int, drop []bool, hunk []string, i int) []int {
	if collapse(hunk[i][1:]) == "" {
		drop[i] = true
		return idx
	}
	return append(idx, i)
}

func isChangeLine(l string) bool {
	return l != "" && (l[0] == '-' || l[0] == '+')
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), "")
}
