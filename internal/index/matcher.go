package index

import (
	"fmt"
	"regexp"
	"strings"
)

var footnotePattern = regexp.MustCompile(`\[[^\]]*\]`)

// ColumnMatcher locates the identifier column of a table.
type ColumnMatcher interface {
	Name() string
	Match(t Table) (int, bool)
}

// SynonymMatcher matches a header against a set of known column names,
// ignoring case, footnote markers and repeated whitespace.
type SynonymMatcher struct {
	synonyms map[string]struct{}
}

// NewSynonymMatcher creates a matcher for the given header names.
func NewSynonymMatcher(names ...string) *SynonymMatcher {
	m := &SynonymMatcher{synonyms: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if k := headerKey(n); k != "" {
			m.synonyms[k] = struct{}{}
		}
	}
	return m
}

func (m *SynonymMatcher) Name() string { return "synonym" }

// Match returns the first header that is a known synonym.
func (m *SynonymMatcher) Match(t Table) (int, bool) {
	for i, h := range t.Headers {
		if _, ok := m.synonyms[headerKey(h)]; ok {
			return i, true
		}
	}
	return 0, false
}

// ShapeMatcher picks the column whose cells mostly look like identifiers,
// for sources whose header names are unhelpful.
type ShapeMatcher struct {
	pattern  *regexp.Regexp
	minShare float64
}

// NewShapeMatcher compiles the cell pattern. A column matches when at
// least 80% of its non-blank cells match.
func NewShapeMatcher(pattern string) (*ShapeMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling shape pattern: %w", err)
	}
	return &ShapeMatcher{pattern: re, minShare: 0.8}, nil
}

func (m *ShapeMatcher) Name() string { return "shape" }

// Match returns the leftmost column satisfying the shape threshold.
func (m *ShapeMatcher) Match(t Table) (int, bool) {
	for col := 0; col < t.Width(); col++ {
		var filled, hits int
		for _, cell := range t.Column(col) {
			cell = CleanCell(cell)
			if isNullMarker(cell) {
				continue
			}
			filled++
			if m.pattern.MatchString(cell) {
				hits++
			}
		}
		if filled > 0 && float64(hits)/float64(filled) >= m.minShare {
			return col, true
		}
	}
	return 0, false
}

// MatcherChain orders column matchers by precedence.
type MatcherChain []ColumnMatcher

// CleanCell strips footnote markers and exchange prefixes such as
// "SEHK: 5" from a cell.
func CleanCell(cell string) string {
	cell = footnotePattern.ReplaceAllString(cell, "")
	if i := strings.LastIndex(cell, ":"); i >= 0 {
		cell = cell[i+1:]
	}
	return strings.TrimSpace(cell)
}

var nullMarkers = map[string]struct{}{
	"":     {},
	"-":    {},
	"—":    {},
	"–":    {},
	"n/a":  {},
	"nan":  {},
	"none": {},
	"null": {},
}

func isNullMarker(cell string) bool {
	_, ok := nullMarkers[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

func headerKey(h string) string {
	h = footnotePattern.ReplaceAllString(h, "")
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}
