package clip

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// SearchMode selects how a query matches text.
type SearchMode int

const (
	// SearchNone matches every clip.
	SearchNone SearchMode = iota
	// SearchSubstring is a case-insensitive substring match.
	SearchSubstring
	// SearchFuzzy is a case-insensitive in-order subsequence match.
	SearchFuzzy
	// SearchRegex is a case-insensitive regular expression match.
	SearchRegex
)

func (m SearchMode) String() string {
	switch m {
	case SearchNone:
		return "none"
	case SearchSubstring:
		return "substring"
	case SearchFuzzy:
		return "fuzzy"
	case SearchRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// Query is a parsed search string.
//
// The mode is picked from the raw input: "~abc" is fuzzy, "/a.c/" is a regex
// and anything else is a substring. A regex that fails to compile degrades to
// a substring search for the whole raw input, slashes included.
type Query struct {
	Raw  string
	Mode SearchMode

	term string
	re   *regexp.Regexp
}

// ParseQuery parses raw into a Query.
func ParseQuery(raw string) Query {
	q := Query{Raw: raw}
	switch {
	case raw == "":
		q.Mode = SearchNone
	case strings.HasPrefix(raw, "~") && len(raw) > 1:
		q.Mode = SearchFuzzy
		q.term = strings.ToLower(raw[1:])
	case strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) > 2:
		re, err := regexp.Compile("(?i)" + raw[1:len(raw)-1])
		if err != nil {
			q.Mode = SearchSubstring
			q.term = strings.ToLower(raw)
			break
		}
		q.Mode = SearchRegex
		q.re = re
	default:
		q.Mode = SearchSubstring
		q.term = strings.ToLower(raw)
	}
	return q
}

// Empty reports whether the query matches everything.
func (q Query) Empty() bool {
	return q.Mode == SearchNone
}

// MatchText reports whether text satisfies the query.
func (q Query) MatchText(text string) bool {
	switch q.Mode {
	case SearchNone:
		return true
	case SearchFuzzy:
		return fuzzyMatch(strings.ToLower(text), q.term)
	case SearchRegex:
		return q.re.MatchString(text)
	default:
		return strings.Contains(strings.ToLower(text), q.term)
	}
}

// Match reports whether c satisfies the query. A non-empty query never
// matches an image clip.
func (q Query) Match(c *Clip) bool {
	if q.Empty() {
		return true
	}
	text, ok := c.Text()
	if !ok {
		return false
	}
	return q.MatchText(text)
}

func fuzzyMatch(text, pattern string) bool {
	if pattern == "" {
		return true
	}
	p := []rune(pattern)
	i := 0
	for _, r := range text {
		if r == p[i] {
			i++
			if i == len(p) {
				return true
			}
		}
	}
	return false
}

// DateRange restricts a listing by clip age.
type DateRange string

const (
	// RangeAll applies no age restriction.
	RangeAll DateRange = "all"
	// RangeToday keeps clips younger than one day.
	RangeToday DateRange = "today"
	// RangeWeek keeps clips younger than seven days.
	RangeWeek DateRange = "week"
)

// ParseDateRange parses a range name; the empty string means RangeAll.
func ParseDateRange(s string) (DateRange, error) {
	switch DateRange(strings.ToLower(s)) {
	case "", RangeAll:
		return RangeAll, nil
	case RangeToday:
		return RangeToday, nil
	case RangeWeek:
		return RangeWeek, nil
	default:
		return "", fmt.Errorf("unknown date range: %q", s)
	}
}

// Contains reports whether a clip created at t falls in the range.
func (r DateRange) Contains(t, now time.Time) bool {
	age := now.Sub(t)
	switch r {
	case RangeToday:
		return age < 24*time.Hour
	case RangeWeek:
		return age < 7*24*time.Hour
	default:
		return true
	}
}

// Filter returns the clips matching both q and r, keeping their order.
func Filter(clips []Clip, q Query, r DateRange, now time.Time) []Clip {
	out := make([]Clip, 0, len(clips))
	for i := range clips {
		if !r.Contains(clips[i].CreatedAt, now) {
			continue
		}
		if !q.Match(&clips[i]) {
			continue
		}
		out = append(out, clips[i])
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
