package ocr

import (
	"unicode"
	"unicode/utf8"
)

// Thresholds tune the hallucination filter. The defaults were chosen
// empirically against game dialogue and are not load-bearing.
type Thresholds struct {
	MinLength      int
	MinScriptRatio float64
	MinUniqueRatio float64
}

// DefaultThresholds rejects text under 3 characters, text that is less than
// half Japanese script, and text with fewer than 30% distinct characters.
var DefaultThresholds = Thresholds{
	MinLength:      3,
	MinScriptRatio: 0.5,
	MinUniqueRatio: 0.3,
}

// Plausible reports whether text looks like real Japanese dialogue.
func Plausible(text string) bool { return DefaultThresholds.Plausible(text) }

// Plausible applies t to text. Whitespace is not counted.
func (t Thresholds) Plausible(text string) bool {
	var total, script int
	seen := make(map[rune]struct{}, utf8.RuneCountInString(text))
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		seen[r] = struct{}{}
		if isJapaneseScript(r) {
			script++
		}
	}
	if total < t.MinLength || total == 0 {
		return false
	}
	if float64(script)/float64(total) < t.MinScriptRatio {
		return false
	}
	return float64(len(seen))/float64(total) >= t.MinUniqueRatio
}

func isJapaneseScript(r rune) bool {
	return unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Han, r)
}
