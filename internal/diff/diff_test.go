package diff

import (
	"reflect"
	"strings"
	"testing"
)

func TestUnified_ChangedLine(t *testing.T) {
	got := Unified([]string{"A", "B"}, []string{"A", "C"}, "https://example.com", "https://example.com")
	want := []string{
		"--- https://example.com",
		"+++ https://example.com",
		"@@ -1,2 +1,2 @@",
		" A",
		"-B",
		"+C",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
	if !IsChange(got) {
		t.Error("IsChange = false for a real change")
	}
}

func TestUnified_Identical(t *testing.T) {
	lines := []string{"one", "two", "three"}
	if got := Unified(lines, lines, "a", "b"); len(got) != 0 {
		t.Errorf("identical input produced %d lines: %v", len(got), got)
	}
	if got := Unified(nil, nil, "a", "b"); len(got) != 0 {
		t.Errorf("empty input produced %v", got)
	}
}

func TestUnified_FromNothing(t *testing.T) {
	got := Unified(nil, []string{"x", "y"}, NullLabel, "u")
	want := []string{"--- /dev/null", "+++ u", "@@ -0,0 +1,2 @@", "+x", "+y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestUnified_SingleLineRange(t *testing.T) {
	got := Unified([]string{"a"}, []string{"b"}, "f", "t")
	if got[2] != "@@ -1 +1 @@" {
		t.Errorf("hunk header = %q, want @@ -1 +1 @@", got[2])
	}
}

func TestUnified_ContextTrimmed(t *testing.T) {
	var a, b []string
	for i := range 20 {
		line := strings.Repeat("x", i+1)
		a = append(a, line)
		b = append(b, line)
	}
	b[10] = "changed"

	got := Unified(a, b, "f", "t")
	// headers + hunk header + 3 context + -/+ + 3 context
	if len(got) != 2+1+3+2+3 {
		t.Fatalf("got %d lines:\n%s", len(got), strings.Join(got, "\n"))
	}
	if got[2] != "@@ -8,7 +8,7 @@" {
		t.Errorf("hunk header = %q", got[2])
	}
}

func TestUnified_TwoHunks(t *testing.T) {
	var a []string
	for i := range 30 {
		a = append(a, strings.Repeat("l", i+1))
	}
	b := append([]string(nil), a...)
	b[2] = "first"
	b[25] = "second"

	got := Unified(a, b, "f", "t")
	hunks := 0
	for _, l := range got {
		if strings.HasPrefix(l, "@@") {
			hunks++
		}
	}
	if hunks != 2 {
		t.Errorf("hunks = %d, want 2:\n%s", hunks, strings.Join(got, "\n"))
	}
}

func TestIsChange(t *testing.T) {
	if IsChange(nil) {
		t.Error("nil is not a change")
	}
	if IsChange([]string{"--- a", "+++ b"}) {
		t.Error("headers only is not a change")
	}
	if !IsChange([]string{"--- a", "+++ b", "@@ -1 +1 @@"}) {
		t.Error("three lines is a change")
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a\nb", []string{"a", "b"}},
		{"a\r\nb", []string{"a", "b"}},
		{"a\n\nb", []string{"a", "", "b"}},
	}
	for _, tt := range tests {
		if got := SplitLines(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitLines(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitLines_RoundTrip(t *testing.T) {
	lines := []string{"A", "", "  indented", "C"}
	if got := SplitLines(strings.Join(lines, "\n")); !reflect.DeepEqual(got, lines) {
		t.Errorf("round trip = %q, want %q", got, lines)
	}
}
