package model

import "strings"

// maxWordRunes bounds the alphanumeric run we'll tokenize into the stack
// buffer; longer runs are skipped rather than degrading to a heap
// allocation per word.
const maxWordRunes = 21

// EdgeNgrams emits, for each maximal alphanumeric run of at least three
// ASCII alphanumeric characters in text, space-separated prefixes of
// lengths 2..min(21, len). It is the hot path for indexing every message
// body: it tracks byte offsets of the current word's rune boundaries in a
// fixed-size stack array and slices the original string (no per-word
// allocation) to emit each prefix. Words longer than maxWordRunes are
// skipped outright rather than falling back to a heap allocation.
func EdgeNgrams(text string) string {
	var out strings.Builder
	first := true
	var offsets [maxWordRunes + 1]int // offsets[n] = byte length of the first n runes
	runeCount := 0
	wordStart := -1
	tooLong := false

	emit := func() {
		if tooLong || runeCount < 3 {
			return
		}
		for l := 2; l <= runeCount; l++ {
			if !first {
				out.WriteByte(' ')
			}
			first = false
			out.WriteString(text[wordStart : wordStart+offsets[l]])
		}
	}

	for i, r := range text {
		if isAlnum(r) {
			if wordStart == -1 {
				wordStart = i
				runeCount = 0
				tooLong = false
			}
			if runeCount < maxWordRunes {
				runeCount++
				offsets[runeCount] = i + 1 - wordStart // isAlnum is ASCII-only: 1 byte/rune
			} else {
				tooLong = true
			}
			continue
		}
		if wordStart != -1 {
			emit()
			wordStart = -1
		}
	}
	if wordStart != -1 {
		emit()
	}

	return out.String()
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
