package pipeline

import (
	"fmt"
	"strings"
)

// Piece is one chunk of a document produced by the Chunker, before it
// is assigned a content-addressed ID.
type Piece struct {
	Content string
	Tokens  int
	Index   int
}

// Chunker splits sanitized document text into token-bounded pieces.
//
// Without a split character, the text is cut into sliding token
// windows of MaxTokens with Overlap tokens shared between neighbours.
// With a split character, the text is first divided on that character;
// oversized segments are then window-chunked unless SplitOnly is set,
// in which case segments pass through whatever their size.
type Chunker struct {
	maxTokens int
	overlap   int
	splitChar string
	splitOnly bool
	tokenizer Tokenizer
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithSplitCharacter makes the chunker divide on the given delimiter
// before applying token windows. splitOnly disables the window pass so
// segments keep their natural size.
func WithSplitCharacter(c string, splitOnly bool) ChunkerOption {
	return func(ch *Chunker) {
		ch.splitChar = c
		ch.splitOnly = splitOnly
	}
}

// WithTokenizer replaces the default word tokenizer.
func WithTokenizer(t Tokenizer) ChunkerOption {
	return func(ch *Chunker) { ch.tokenizer = t }
}

// NewChunker creates a Chunker. maxTokens bounds each piece and overlap
// is the number of tokens shared between consecutive window pieces;
// overlap must be smaller than maxTokens.
func NewChunker(maxTokens, overlap int, opts ...ChunkerOption) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("pipeline: max tokens must be positive, got %d", maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("pipeline: overlap %d must be in [0, %d)", overlap, maxTokens)
	}
	ch := &Chunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		tokenizer: WordTokenizer{},
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch, nil
}

// Chunk splits content into pieces. Empty content yields no pieces.
func (ch *Chunker) Chunk(content string) []Piece {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var pieces []Piece
	if ch.splitChar != "" {
		pieces = ch.chunkBySplit(content)
	} else {
		pieces = ch.chunkByWindows(content)
	}

	for i := range pieces {
		pieces[i].Index = i
	}
	return pieces
}

func (ch *Chunker) chunkByWindows(content string) []Piece {
	tokens := ch.tokenizer.Encode(content)
	if len(tokens) == 0 {
		return nil
	}

	step := ch.maxTokens - ch.overlap
	pieces := make([]Piece, 0, (len(tokens)+step-1)/step)
	for start := 0; start < len(tokens); start += step {
		end := start + ch.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		pieces = append(pieces, Piece{
			Content: strings.TrimSpace(ch.tokenizer.Decode(window)),
			Tokens:  len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return pieces
}

func (ch *Chunker) chunkBySplit(content string) []Piece {
	segments := strings.Split(content, ch.splitChar)
	var pieces []Piece
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		n := len(ch.tokenizer.Encode(seg))
		if !ch.splitOnly && n > ch.maxTokens {
			pieces = append(pieces, ch.chunkByWindows(seg)...)
			continue
		}
		pieces = append(pieces, Piece{Content: seg, Tokens: n})
	}
	return pieces
}
