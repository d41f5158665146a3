package detect

import (
	"unicode"
	"unicode/utf8"
)

// CheckCaps measures uppercase letters against all letters; digits, spaces and
// punctuation count toward neither side. Messages shorter than minLength, or
// with fewer than minLength letters, never fire. A maxPercent of zero
// disables the check.
func CheckCaps(content string, maxPercent, minLength int) (CapsFlood, bool) {
	if maxPercent <= 0 || maxPercent >= 100 {
		return CapsFlood{}, false
	}
	if utf8.RuneCountInString(content) < minLength {
		return CapsFlood{}, false
	}

	letters, upper := 0, 0
	for _, r := range content {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 || letters < minLength {
		return CapsFlood{}, false
	}

	percent := float64(upper) * 100 / float64(letters)
	if percent > float64(maxPercent) {
		return CapsFlood{Percent: percent, Max: maxPercent}, true
	}
	return CapsFlood{}, false
}
