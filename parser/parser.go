// Package parser holds the text rules applied to scraped book names.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-wuxia/models"
)

// Go's \w, \W and \s are ASCII-only. Book names carry CJK alternate
// titles and non-breaking or ideographic spaces, so the classes are
// spelled out with Unicode properties.
const (
	word    = `[\p{L}\p{N}_]`
	nonWord = `[^\p{L}\p{N}_]`
	space   = `[\s\v\x{1c}-\x{1f}\x{85}\p{Z}]`
)

// IndexMarkers are the substrings that identify a book index page.
var IndexMarkers = []string{"Index", "Table of Contents", "Sovereign of the Three Realms"}

// nameRules run in order; later rules clean up what earlier ones leave.
var nameRules = []*regexp.Regexp{
	// alternate-language title, e.g. " (战天)"
	regexp.MustCompile(space + `*\(.+\)`),
	// trailing "- Index"
	regexp.MustCompile(space + `*` + nonWord + `*` + space + `*Index`),
	// "Table of Contents" and look-alikes
	regexp.MustCompile(`T` + word + `+` + space + word + `+` + space + `C` + word + `+`),
	// dangling separators
	regexp.MustCompile(space + nonWord + space + `*`),
}

// ValidateItem ensures the item carries a payload matching its kind and a
// non-zero identifier.
func ValidateItem(it *models.Item) error {
	if it == nil {
		return fmt.Errorf("item is nil")
	}
	switch it.Kind {
	case models.KindBook:
		if it.Book == nil {
			return fmt.Errorf("book item has no payload")
		}
	case models.KindChapter:
		if it.Chapter == nil {
			return fmt.Errorf("chapter item has no payload")
		}
	default:
		return fmt.Errorf("item has unknown kind %d", int(it.Kind))
	}
	if it.ID() == 0 {
		return fmt.Errorf("%s item missing id", it.Kind)
	}
	return nil
}

// IsIndexName reports whether name looks like a book index page title.
func IsIndexName(name string) bool {
	for _, marker := range IndexMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// NormalizeBookName strips alternate titles and index markers from name.
func NormalizeBookName(name string) string {
	for _, rule := range nameRules {
		name = rule.ReplaceAllString(name, "")
	}
	return name
}
