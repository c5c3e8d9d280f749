package sqlpipe

import "unicode"

// IsArabic reports whether s contains any Arabic letter.
func IsArabic(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Arabic) {
			return true
		}
	}
	return false
}

// hasNonLatinLetters reports whether s has letters outside the Latin script.
func hasNonLatinLetters(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && !unicode.In(r, unicode.Latin) {
			return true
		}
	}
	return false
}
