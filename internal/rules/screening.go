package rules

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Screener matches party identifiers against a sanctions roster.
type Screener struct {
	roster    []string
	keywords  []string
	threshold float64
}

// Match describes why a name was flagged.
type Match struct {
	Entry      string
	Similarity float64
	Keyword    bool
}

// NewScreener builds a screener. Roster entries and keywords are normalized once.
func NewScreener(roster, keywords []string, threshold float64) *Screener {
	s := &Screener{threshold: threshold}
	for _, r := range roster {
		if n := normalizeName(r); n != "" {
			s.roster = append(s.roster, n)
		}
	}
	for _, k := range keywords {
		if n := normalizeName(k); n != "" {
			s.keywords = append(s.keywords, n)
		}
	}
	if s.threshold <= 0 || s.threshold > 1 {
		s.threshold = 1
	}
	return s
}

// Screen returns the best match for name, if any.
func (s *Screener) Screen(name string) (Match, bool) {
	n := normalizeName(name)
	if n == "" {
		return Match{}, false
	}

	for _, k := range s.keywords {
		if strings.Contains(n, k) {
			return Match{Entry: k, Similarity: 1, Keyword: true}, true
		}
	}

	best := Match{}
	for _, entry := range s.roster {
		if entry == n {
			return Match{Entry: entry, Similarity: 1}, true
		}
		sim := similarity(n, entry)
		if sim > best.Similarity {
			best = Match{Entry: entry, Similarity: sim}
		}
	}
	if best.Similarity >= s.threshold {
		return best, true
	}
	return Match{}, false
}

func similarity(a, b string) float64 {
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// normalizeName lowercases, replaces punctuation with spaces and collapses runs of whitespace.
func normalizeName(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}
