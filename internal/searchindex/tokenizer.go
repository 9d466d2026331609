package searchindex

import "strings"

// maxTokenLen drops pathologically long tokens rather than indexing them,
// matching the schema's tokenizer contract.
const maxTokenLen = 40

// analyzerName identifies the single custom analyzer shared by every
// tokenized field, so index-time and query-time tokenization agree.
const analyzerName = "cass_word"

// Tokenize lowercases text and splits it on word boundaries (runs of
// letters/digits), dropping tokens longer than maxTokenLen.
func Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 && b.Len() <= maxTokenLen {
			tokens = append(tokens, b.String())
		}
		b.Reset()
	}
	for _, r := range text {
		if isWordRune(r) {
			b.WriteRune(toLowerASCII(r))
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func isWordRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toLowerASCII(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}
