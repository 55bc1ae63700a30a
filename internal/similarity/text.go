package similarity

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Fold canonicalizes text before comparison: NFC composition followed by
// language-neutral lower-casing, so "Café" and "CAFÉ" compare equal.
func Fold(s string) string {
	if s == "" {
		return s
	}
	// cases.Caser is stateful and not safe for concurrent use.
	return cases.Lower(language.Und).String(norm.NFC.String(s))
}
