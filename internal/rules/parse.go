package rules

import (
	"slices"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region spans
// span is a half-open rune interval.
type span struct {
	start, end int
}

func (s span) empty() bool { return s.end <= s.start }

func (s span) contains(i int) bool { return i >= s.start && i < s.end }

// matchAt returns the longest word in words that occurs at rune index i.
func matchAt(r []rune, i int, words []string) string {
	best := ""
	for _, w := range words {
		wr := []rune(w)
		if i+len(wr) > len(r) || len([]rune(best)) >= len(wr) {
			continue
		}
		if string(r[i:i+len(wr)]) == w {
			best = w
		}
	}
	return best
}
// #endregion spans

// #region detectors
func trimSentence(s string) []rune {
	s = strings.TrimSpace(s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return []rune(s)
}

// timeSpan finds the first run of consecutive time words.
func timeSpan(r []rune) span {
	for i := range r {
		w := matchAt(r, i, timeWords)
		if w == "" {
			continue
		}
		end := i + len([]rune(w))
		for end < len(r) {
			next := matchAt(r, end, timeWords)
			if next == "" {
				break
			}
			end += len([]rune(next))
		}
		return span{i, end}
	}
	return span{}
}

// innerSuffixes may follow a place noun, e.g. 家里.
var innerSuffixes = []rune{'里', '中', '内', '外', '旁', '边'}

// locationSpan finds a preposition followed by a place noun closed by a
// location suffix. Runes inside skip are never treated as a preposition.
func locationSpan(r []rune, skip span) span {
	for p := range r {
		if skip.contains(p) || matchAt(r, p, locationPrepositions) == "" {
			continue
		}
		limit := min(p+1+maxLocationRunes, len(r))
		for e := p + 2; e <= limit; e++ {
			if !slices.Contains(locationSuffixes, r[e-1]) {
				continue
			}
			for e < len(r) && slices.Contains(innerSuffixes, r[e]) {
				e++
			}
			return span{p, e}
		}
	}
	return span{}
}

// mannerSpan finds a manner adverb, with its trailing 地 when present.
func mannerSpan(r []rune, skip ...span) span {
outer:
	for i := range r {
		for _, s := range skip {
			if s.contains(i) {
				continue outer
			}
		}
		w := matchAt(r, i, mannerWords)
		if w == "" {
			continue
		}
		end := i + len([]rune(w))
		if end < len(r) && string(r[end]) == mannerMarker {
			end++
		}
		return span{i, end}
	}
	return span{}
}

// firstVerb returns the earliest verb position at or after from.
func firstVerb(r []rune, from int) (int, string) {
	for i := from; i < len(r); i++ {
		if v := matchAt(r, i, verbs); v != "" {
			return i, v
		}
	}
	return -1, ""
}
// #endregion detectors

// #region parse
// Parse reads a sentence into a triplet using keyword tables. Chinese text
// is split by modifier spans and a verb lexicon; Latin text falls back to a
// word-order heuristic.
func Parse(sentence string) triplet.Triplet {
	r := trimSentence(sentence)
	if len(r) == 0 {
		return triplet.Triplet{}
	}
	if isLatin(r) {
		return parseLatin(string(r))
	}

	ts := timeSpan(r)
	ls := locationSpan(r, ts)
	ms := mannerSpan(r, ts, ls)

	out := triplet.Triplet{}
	covered := make([]bool, len(r))
	for _, s := range []struct {
		key string
		sp  span
	}{{triplet.ModTime, ts}, {triplet.ModLocation, ls}, {triplet.ModManner, ms}} {
		if s.sp.empty() {
			continue
		}
		out = out.WithModifier(s.key, string(r[s.sp.start:s.sp.end]))
		for i := s.sp.start; i < s.sp.end; i++ {
			covered[i] = true
		}
	}

	// Uncovered runes form the subject (before the first modifier) and the
	// predicate tail (after the last one).
	var head, tail []rune
	seenCovered := false
	for i, c := range covered {
		switch {
		case c:
			seenCovered = true
		case !seenCovered:
			head = append(head, r[i])
		default:
			tail = append(tail, r[i])
		}
	}

	if !seenCovered {
		// No modifiers: split at the first verb after position 0.
		pos, _ := firstVerb(r, 1)
		if pos < 0 {
			out.Predicate = string(r)
			return out
		}
		head, tail = r[:pos], r[pos:]
	}

	if len(tail) == 0 && len(head) > 0 {
		// Modifiers came last, e.g. 他跑步在公园.
		pos, _ := firstVerb(head, 1)
		if pos > 0 {
			head, tail = head[:pos], head[pos:]
		}
	}

	out.Subject = string(head)
	out.Predicate, out.Object = splitPredicate(tail)
	return out
}

// splitPredicate separates the leading verb from its object.
func splitPredicate(tail []rune) (string, string) {
	if len(tail) == 0 {
		return "", ""
	}
	v := matchAt(tail, 0, verbs)
	if v == "" {
		pos, pv := firstVerb(tail, 0)
		if pos < 0 {
			return string(tail), ""
		}
		v = pv
		tail = tail[pos:]
	}
	rest := tail[len([]rune(v)):]
	if m := matchAt(rest, 0, aspectMarkers); m != "" {
		rest = rest[len([]rune(m)):]
	}
	return v, string(rest)
}

func isLatin(r []rune) bool {
	letters := 0
	for _, c := range r {
		if c < unicode.MaxASCII && unicode.IsLetter(c) {
			letters++
		}
	}
	return letters*2 > len(r)
}
// #endregion parse

// #region parse-latin
var latinPrepositions = []string{"in", "at", "on", "near", "inside", "outside"}

var latinArticles = []string{"the", "a", "an"}

func parseLatin(s string) triplet.Triplet {
	out := triplet.Triplet{}
	lower := strings.ToLower(s)

	for _, tw := range timeWordsEN {
		if idx := strings.Index(lower, tw); idx >= 0 {
			out = out.WithModifier(triplet.ModTime, s[idx:idx+len(tw)])
			s = strings.TrimSpace(s[:idx] + s[idx+len(tw):])
			break
		}
	}

	words := strings.Fields(s)
	for i := 1; i < len(words); i++ {
		if !slices.Contains(latinPrepositions, strings.ToLower(words[i])) || i+1 >= len(words) {
			continue
		}
		end := i + 2
		if slices.Contains(latinArticles, strings.ToLower(words[i+1])) && i+2 < len(words) {
			end = i + 3
		}
		out = out.WithModifier(triplet.ModLocation, strings.Join(words[i:end], " "))
		words = append(words[:i:i], words[end:]...)
		break
	}

	if len(words) == 0 {
		return out
	}
	subjEnd := 1
	if slices.Contains(latinArticles, strings.ToLower(words[0])) && len(words) > 2 {
		subjEnd = 2
	}
	if len(words) <= subjEnd {
		out.Predicate = strings.Join(words, " ")
		return out
	}
	out.Subject = strings.Join(words[:subjEnd], " ")
	out.Predicate = words[subjEnd]
	out.Object = strings.Join(words[subjEnd+1:], " ")
	return out
}
// #endregion parse-latin
