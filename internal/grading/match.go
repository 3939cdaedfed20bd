package grading

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// TextMatcher decides whether a free-form response matches one of the
// accepted answers. Comparison is on normalized text; MaxEdit > 0 also
// accepts responses within that Levenshtein distance. A numeric accepted
// answer only matches by value, within an optional "tol=" entry in the
// accepted list; text rules never apply to it.
type TextMatcher struct {
	MaxEdit int
}

func (m TextMatcher) Match(accepted []string, response string) bool {
	resp := normalize(response)
	if resp == "" {
		return false
	}
	tol, accepted := tolerance(accepted)
	for _, a := range accepted {
		if x, ok := parseNumber(a); ok {
			if y, ok := parseNumber(response); ok && math.Abs(x-y) <= tol {
				return true
			}
			continue
		}
		na := normalize(a)
		if na == "" {
			continue
		}
		if na == resp {
			return true
		}
		if m.MaxEdit > 0 && levenshtein(na, resp) <= m.MaxEdit {
			return true
		}
	}
	return false
}

// tolerance pulls a "tol=<abs>" entry out of the accepted list.
func tolerance(accepted []string) (float64, []string) {
	tol := 1e-9
	out := make([]string, 0, len(accepted))
	for _, a := range accepted {
		if v, ok := strings.CutPrefix(strings.TrimSpace(a), "tol="); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
				tol = f
			}
			continue
		}
		out = append(out, a)
	}
	return tol, out
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// normalize lowercases, drops punctuation and collapses whitespace runs.
func normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// levenshtein is the unit-cost edit distance over runes.
func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}
	row := make([]int, len(br)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			next := min(row[j]+1, row[j-1]+1, diag+cost)
			diag, row[j] = row[j], next
		}
	}
	return row[len(br)]
}
