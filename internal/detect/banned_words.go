package detect

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CheckBannedWords returns the first entry of words, in list order, that occurs
// in content as a standalone token. Matching is case-insensitive and a word
// embedded in a longer token ("bad" inside "badword") does not count.
func CheckBannedWords(content string, words []string) (BannedWord, bool) {
	if content == "" || len(words) == 0 {
		return BannedWord{}, false
	}
	haystack := strings.ToLower(content)

	for _, word := range words {
		needle := strings.ToLower(strings.TrimSpace(word))
		if needle == "" {
			continue
		}
		if containsToken(haystack, needle) {
			return BannedWord{Word: word}, true
		}
	}
	return BannedWord{}, false
}

func containsToken(haystack, needle string) bool {
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(haystack[start:])
		offset = start + size
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
