package pipeline

import "strings"

// Tokenizer converts between text and token sequences for chunk
// sizing. The default implementation splits on whitespace; callers with
// a model-specific tokenizer can plug it in through ChunkerOption.
type Tokenizer interface {
	Encode(text string) []string
	Decode(tokens []string) string
}

// WordTokenizer tokenizes on whitespace boundaries. Token counts are
// approximate relative to model tokenizers but stable and fast.
type WordTokenizer struct{}

// Encode splits text into whitespace-delimited tokens.
func (WordTokenizer) Encode(text string) []string {
	return strings.Fields(text)
}

// Decode joins tokens back into text with single spaces.
func (WordTokenizer) Decode(tokens []string) string {
	return strings.Join(tokens, " ")
}
