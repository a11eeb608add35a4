package triplet

import (
	"fmt"
	"strings"
	"unicode"
)

// #region normalize
// Normalize folds full-width forms to half-width, lowercases, and drops
// whitespace and punctuation so that surface variants compare equal.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		r = foldWidth(r)
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func foldWidth(r rune) rune {
	switch {
	case r == 0x3000:
		return ' '
	case r >= 0xFF01 && r <= 0xFF5E:
		return r - 0xFEE0
	}
	return r
}
// #endregion normalize

// #region similarity
// Similarity is the Jaccard index of the character sets of the normalized
// inputs. Two empty strings are identical; one empty string matches nothing.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	setA := make(map[rune]struct{}, len(na))
	for _, r := range na {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{}, len(nb))
	for _, r := range nb {
		setB[r] = struct{}{}
	}
	inter := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
// #endregion similarity

// #region classify
var categoryKeywords = []struct {
	cat   Category
	words []string
}{
	{CategoryIncompleteArgument, []string{"argument", "论元", "incomplete", "不完整"}},
	{CategoryWrongEntity, []string{"wrong", "incorrect", "mismatch", "错误", "不匹配"}},
	{CategoryMissingEntity, []string{"missing", "缺失", "缺少", "modifier", "修饰", "entity", "实体", "subject", "object"}},
	{CategoryStructural, []string{"predicate", "谓词", "format", "格式", "structure"}},
}

// Classify returns the category an issue counts under. An explicit category
// wins; otherwise message keywords decide, then the layer.
func Classify(is Issue) Category {
	if is.Category != CategoryNone {
		return is.Category
	}
	msg := strings.ToLower(is.Message)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(msg, w) {
				return ck.cat
			}
		}
	}
	switch is.Layer {
	case LayerCompleteness:
		return CategoryMissingEntity
	case LayerRecoverability:
		return CategoryIncompleteArgument
	default:
		return CategoryStructural
	}
}
// #endregion classify

// #region format
// Format renders a triplet as "{k=v, ...} predicate(subject, object)" with a
// dash for absent slots.
func Format(t Triplet) string {
	var b strings.Builder
	if keys := t.ModifierKeys(); len(keys) > 0 {
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, t.Modifiers[k])
		}
		b.WriteString("} ")
	}
	fmt.Fprintf(&b, "%s(%s, %s)", orDash(t.Predicate), orDash(t.Subject), orDash(t.Object))
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
// #endregion format
