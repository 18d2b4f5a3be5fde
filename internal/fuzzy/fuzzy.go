// Package fuzzy decides whether two records describe the same release despite
// small spelling differences.
package fuzzy

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

// DefaultThreshold is the similarity at or above which two strings match.
const DefaultThreshold = 0.85

// Similarity returns 1 - distance/maxLen over the case-folded, trimmed
// inputs. The result is symmetric and in [0,1]. Two empty strings
// score 0: absence of data is never a match.
func Similarity(a, b string) float64 {
	a, b = fold(a), fold(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matcher compares records at a configurable threshold.
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a matcher; thresholds outside (0,1] fall back to
// DefaultThreshold.
func NewMatcher(threshold float64) Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Match reports whether a and b are similar enough.
func (m Matcher) Match(a, b string) bool {
	return Similarity(a, b) >= m.threshold()
}

// SameRelease reports whether artist and title both match.
func (m Matcher) SameRelease(a, b models.Record) bool {
	return m.Match(a.Artist, b.Artist) && m.Match(a.Title, b.Title)
}

func (m Matcher) threshold() float64 {
	if m.Threshold <= 0 || m.Threshold > 1 {
		return DefaultThreshold
	}
	return m.Threshold
}

// Duplicate is a pair of records in one list that look like the same release.
type Duplicate struct {
	A, B models.Record
}

// FindDuplicates returns every pair in records that SameRelease accepts.
// A CD and a vinyl copy of the same album are not duplicates. Each pair is
// reported once, in list order.
func (m Matcher) FindDuplicates(records []models.Record) []Duplicate {
	var out []Duplicate
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			if records[i].Format != records[j].Format && records[i].Format != "" && records[j].Format != "" {
				continue
			}
			if m.SameRelease(records[i], records[j]) {
				out = append(out, Duplicate{A: records[i], B: records[j]})
			}
		}
	}
	return out
}
