package discovery

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugAttempts bounds the numeric suffix search during collision handling.
const MaxSlugAttempts = 1000

// Slugify lower-cases s, strips diacritics and collapses everything that is
// not a letter or digit into single dashes.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// SlugBase derives the human-readable slug for a business. The city is
// appended unless the name already ends with it.
func SlugBase(name, city string) string {
	n := Slugify(name)
	c := Slugify(city)
	switch {
	case c == "":
		return n
	case n == "":
		return c
	case n == c || strings.HasSuffix(n, "-"+c):
		return n
	default:
		return n + "-" + c
	}
}

// SlugCandidate returns the attempt-th candidate for base: base itself for the
// first attempt, then base-2, base-3 and so on.
func SlugCandidate(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	return base + "-" + strconv.Itoa(attempt)
}
