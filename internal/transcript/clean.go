package transcript

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	markupRe        = regexp.MustCompile(`<[^>]*>`)
	leadingSymbolRe = regexp.MustCompile(`^[^\p{L}\p{N}\s¿¡]+`)
	multiSpaceRe    = regexp.MustCompile(`\s+`)
	spacePunctRe    = regexp.MustCompile(`\s+([.,!?;:])`)
	punctGapRe      = regexp.MustCompile(`([.,!?;:])\s*([.,!?;:])`)
)

// CleanFragment normalizes one incremental speech fragment: markup is
// stripped, leading non-word symbols removed, and whitespace collapsed.
// Inverted Spanish punctuation is allowed to lead a sentence.
func CleanFragment(text string) string {
	cleaned := markupRe.ReplaceAllString(text, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = leadingSymbolRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	return cleaned
}

// CleanFinal normalizes an accumulated utterance before emission: collapses
// whitespace, removes space before punctuation, and merges adjacent
// punctuation marks.
func CleanFinal(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	cleaned = spacePunctRe.ReplaceAllString(cleaned, "$1")
	cleaned = punctGapRe.ReplaceAllString(cleaned, "$1$2")
	return cleaned
}

// Join concatenates a new fragment onto accumulated text. No separating
// space is inserted when the existing text already ends with a space or an
// apostrophe, or when the fragment begins with punctuation, whitespace, an
// apostrophe, or a lower-case letter (a leading lower-case character is
// treated as a word continuation rather than a new word).
func Join(existing, next string) string {
	if existing == "" {
		return next
	}
	if next == "" {
		return existing
	}
	if strings.HasSuffix(existing, " ") || strings.HasSuffix(existing, "'") || strings.HasSuffix(existing, "’") {
		return existing + next
	}

	r, _ := utf8.DecodeRuneInString(next)
	if unicode.IsSpace(r) || unicode.IsPunct(r) || r == '\'' || r == '’' || unicode.IsLower(r) {
		return existing + next
	}

	return existing + " " + next
}
