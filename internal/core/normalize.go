package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// NormalizeKey case-folds s and collapses runs of whitespace so that
// "Boss@Corp.com " and "boss@corp.com" address the same learned entry
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// tokenize splits folded text into word tokens. Letters, digits and the
// characters of an address (@ . _ ') stay inside a token; everything else,
// hyphens included, separates. Trailing dots and quotes are trimmed so
// "urgent." matches "urgent" and "follow-up" yields "follow" "up".
func tokenize(text string) []string {
	folded := cases.Fold().String(text)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		return !strings.ContainsRune("@._'", r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "._'")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// phraseSet returns the set of unigrams and bigrams in text
func phraseSet(text string) map[string]struct{} {
	tokens := tokenize(text)
	set := make(map[string]struct{}, len(tokens)*2)
	for i, tok := range tokens {
		set[tok] = struct{}{}
		if i+1 < len(tokens) {
			set[tok+" "+tokens[i+1]] = struct{}{}
		}
	}
	return set
}
