package common

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	specialRunPattern = regexp.MustCompile(`[*#_\-]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	titleCaser        = cases.Title(language.Und)
)

// NormalizeMerchant canonicalizes a merchant string for matching and deduplication.
// It uppercases, drops everything after the first run of *, #, - or _ (trailing
// transaction codes), collapses whitespace and trims.
func NormalizeMerchant(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	upper = strings.TrimLeft(upper, "*#_- ")

	if loc := specialRunPattern.FindStringIndex(upper); loc != nil {
		upper = upper[:loc[0]]
	}

	return strings.TrimSpace(whitespacePattern.ReplaceAllString(upper, " "))
}

// CollapseWhitespace replaces every whitespace run with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// DisplayMerchant renders a normalized merchant for people: "SWIGGY BANGALORE" -> "Swiggy Bangalore".
func DisplayMerchant(normalized string) string {
	return titleCaser.String(strings.ToLower(normalized))
}
