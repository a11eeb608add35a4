package datasource

import (
	"strings"
	"unicode"
)

const (
	minQualityRunes = 8
	maxQualityRunes = 120
)

// allowedPunct are punctuation marks that do not count as special characters.
const allowedPunct = "，。！？；：、·"

// verbHints are common CJK verbs and copulas; a CJK sentence with none of
// them is likely a fragment.
const verbHints = "是有做说给去来在被"

// Score rates a sentence in [0,1]. It penalizes lengths outside 8..120 runes,
// a high share of special characters, a character repeated four or more times
// in a row, and CJK text without any common verb.
func Score(text string) float64 {
	r := []rune(text)
	if len(r) == 0 {
		return 0
	}
	score := 1.0
	if len(r) < minQualityRunes || len(r) > maxQualityRunes {
		score -= 0.3
	}

	special := 0
	hasCJK := false
	run, prev := 0, rune(-1)
	repeated := false
	for _, c := range r {
		if unicode.Is(unicode.Han, c) {
			hasCJK = true
		}
		if !isPlain(c) {
			special++
		}
		if c == prev {
			run++
		} else {
			run, prev = 1, c
		}
		if run >= 4 {
			repeated = true
		}
	}
	if float64(special)/float64(len(r)) > 0.2 {
		score -= 0.2
	}
	if repeated {
		score -= 0.2
	}
	if hasCJK && !strings.ContainsAny(text, verbHints) {
		score -= 0.15
	}
	return max(0, min(1, score))
}

func isPlain(c rune) bool {
	switch {
	case c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c)):
		return true
	case unicode.Is(unicode.Han, c), unicode.IsSpace(c):
		return true
	}
	return strings.ContainsRune(allowedPunct, c)
}
