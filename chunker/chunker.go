// Package chunker implements the Chunker (CH): deterministic semantic
// chunking of a document's raw text into the immutable, dense, ordered
// Chunk set defined in §3 (§4.3 "Chunker (CH)"). Token accounting uses
// tiktoken-go's cl100k_base encoder so max_tokens/overlap_tokens are real
// model token counts, not a word-count proxy.
package chunker

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/joeott/legal-doc-processor-sub013/pipelineerr"
	"github.com/joeott/legal-doc-processor-sub013/types"
)

// Config controls the chunking algorithm (§4.3 input: "config
// {max_tokens, overlap_tokens, min_chunk_chars}").
type Config struct {
	MaxTokens     int
	OverlapTokens int
	MinChunkChars int
}

// DefaultConfig returns the chunking defaults used when a project hasn't
// overridden them.
func DefaultConfig() Config {
	return Config{MaxTokens: 512, OverlapTokens: 64, MinChunkChars: 200}
}

// Chunker holds the token encoder so repeated Split calls reuse it.
type Chunker struct {
	enc *tiktoken.Tiktoken
}

// New builds a Chunker, loading the cl100k_base BPE encoder once.
func New() (*Chunker, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, pipelineerr.NewStageError(pipelineerr.CategoryConfiguration, "tokenizer_load_failed", err)
	}
	return &Chunker{enc: enc}, nil
}

// boundary is a candidate split point in the source text, ranked by how
// strong a semantic break it represents (§4.3: "sentence → paragraph →
// page break; fall back to whitespace").
type boundary struct {
	offset int
	rank   int // lower is stronger: 0=page break, 1=paragraph, 2=sentence, 3=whitespace
}

const (
	rankPageBreak  = 0
	rankParagraph  = 1
	rankSentence   = 2
	rankWhitespace = 3
)

// Split runs the deterministic chunking algorithm over text (§4.3). Given
// byte-identical text and an identical cfg, Split always returns
// byte-identical chunks with identical indices (the determinism invariant
// that makes stage re-entry idempotent, §4.1).
func (c *Chunker) Split(documentID uuid.UUID, text string, cfg Config) ([]types.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, pipelineerr.NewStageError(pipelineerr.CategoryData, "empty_ocr", nil)
	}

	tokens := c.enc.Encode(text, nil, nil)
	if cfg.MaxTokens <= 0 {
		cfg = DefaultConfig()
	}
	if hasOversizeToken(tokenCharLens(c.enc, tokens)) {
		return nil, pipelineerr.NewStageError(pipelineerr.CategoryData, "tokenization_error", nil)
	}

	boundaries := findBoundaries(text)

	var chunks []types.Chunk
	cursor := 0 // token index into `tokens`
	for cursor < len(tokens) {
		windowEnd := cursor + cfg.MaxTokens
		if windowEnd > len(tokens) {
			windowEnd = len(tokens)
		}

		charStart := tokenOffsetToChar(c.enc, tokens, cursor)
		charEnd := tokenOffsetToChar(c.enc, tokens, windowEnd)

		if windowEnd < len(tokens) {
			// Snap forward-window end to the strongest nearby semantic boundary,
			// never past the original window (§4.3 boundary preference).
			if snapped, ok := snapToBoundary(boundaries, charStart, charEnd); ok {
				charEnd = snapped
			}
		} else {
			charEnd = len(text)
		}

		if charEnd <= charStart {
			charEnd = len(text)
		}

		chunkText := text[charStart:charEnd]
		chunks = append(chunks, types.Chunk{
			ID:          deterministicChunkID(documentID, len(chunks)),
			DocumentID:  documentID,
			ChunkIndex:  len(chunks),
			Text:        chunkText,
			StartOffset: charStart,
			EndOffset:   charEnd,
		})

		if charEnd >= len(text) {
			break
		}

		// The snapped boundary may have landed before or after the raw
		// max_tokens window; re-derive the token index at that exact char
		// offset so overlap is always measured from where the chunk
		// actually ended, not from the unsnapped window (§4.3).
		snappedTokenEnd := tokenIndexAtChar(c.enc, text, charEnd)
		nextCursor := snappedTokenEnd - cfg.OverlapTokens
		if nextCursor <= cursor {
			nextCursor = snappedTokenEnd
		}
		cursor = nextCursor
	}

	chunks = mergeTrailingShortChunk(chunks, cfg.MinChunkChars)
	reindex(chunks)

	if err := types.ValidateChunkSet(chunks); err != nil {
		return nil, pipelineerr.NewStageError(pipelineerr.CategoryData, "invariant_violation", err)
	}
	return chunks, nil
}

// findBoundaries scans text once for page-break, paragraph, sentence and
// whitespace candidate split points (§4.3).
func findBoundaries(text string) []boundary {
	var bs []boundary
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		switch {
		case runes[i] == '\f':
			bs = append(bs, boundary{offset: byteOffset(text, i), rank: rankPageBreak})
		case i+1 < len(runes) && runes[i] == '\n' && runes[i+1] == '\n':
			bs = append(bs, boundary{offset: byteOffset(text, i+1), rank: rankParagraph})
		case (runes[i] == '.' || runes[i] == '?' || runes[i] == '!') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]):
			bs = append(bs, boundary{offset: byteOffset(text, i+1), rank: rankSentence})
		case unicode.IsSpace(runes[i]):
			bs = append(bs, boundary{offset: byteOffset(text, i), rank: rankWhitespace})
		}
	}
	return bs
}

func byteOffset(text string, runeIdx int) int {
	count := 0
	for i := range text {
		if count == runeIdx {
			return i
		}
		count++
	}
	return len(text)
}

// snapToBoundary finds the strongest-ranked boundary within (start,end],
// preferring the one closest to end so chunks stay near max_tokens.
func snapToBoundary(boundaries []boundary, start, end int) (int, bool) {
	bestRank := rankWhitespace + 1
	bestOffset := -1
	for _, b := range boundaries {
		if b.offset <= start || b.offset > end {
			continue
		}
		if b.rank < bestRank || (b.rank == bestRank && b.offset > bestOffset) {
			bestRank = b.rank
			bestOffset = b.offset
		}
	}
	if bestOffset < 0 {
		return 0, false
	}
	return bestOffset, true
}

// tokenOffsetToChar maps a token-slice index back to a character offset in
// the original text by re-decoding the token prefix.
func tokenOffsetToChar(enc *tiktoken.Tiktoken, tokens []int, tokenIdx int) int {
	if tokenIdx <= 0 {
		return 0
	}
	if tokenIdx >= len(tokens) {
		tokenIdx = len(tokens)
	}
	prefix := enc.Decode(tokens[:tokenIdx])
	return len(prefix)
}

// tokenIndexAtChar finds the token index whose decoded prefix length is the
// closest to (and not exceeding) charOffset.
func tokenIndexAtChar(enc *tiktoken.Tiktoken, text string, charOffset int) int {
	if charOffset <= 0 {
		return 0
	}
	if charOffset >= len(text) {
		charOffset = len(text)
	}
	return len(enc.Encode(text[:charOffset], nil, nil))
}

// maxSingleTokenChars bounds how many characters a single BPE token may
// decode to. cl100k_base's vocabulary includes merged tokens for long runs
// of repeated whitespace (common in indented code), so a single token can
// decode to far more than the handful of characters most tokens cover; past
// this bound a chunk's token count stays within cfg.MaxTokens while its
// character length does not, which is the pathological case §4.3's
// tokenization_error failure mode names.
const maxSingleTokenChars = 4096

// tokenCharLens decodes each token individually and returns its decoded
// character length, split out from hasOversizeToken so the bound check
// itself needs no tokenizer to test.
func tokenCharLens(enc *tiktoken.Tiktoken, tokens []int) []int {
	lens := make([]int, len(tokens))
	for i, t := range tokens {
		lens[i] = len(enc.Decode([]int{t}))
	}
	return lens
}

// hasOversizeToken reports whether any token's decoded length exceeds
// maxSingleTokenChars.
func hasOversizeToken(tokenLens []int) bool {
	for _, n := range tokenLens {
		if n > maxSingleTokenChars {
			return true
		}
	}
	return false
}

// mergeTrailingShortChunk folds a final chunk shorter than minChars into
// its predecessor (§4.3: "merge trailing chunks shorter than
// min_chunk_chars into their predecessor").
func mergeTrailingShortChunk(chunks []types.Chunk, minChars int) []types.Chunk {
	for len(chunks) >= 2 && chunks[len(chunks)-1].Len() < minChars {
		last := chunks[len(chunks)-1]
		prev := &chunks[len(chunks)-2]
		prev.Text = prev.Text[:last.StartOffset-prev.StartOffset] + last.Text
		prev.EndOffset = last.EndOffset
		chunks = chunks[:len(chunks)-1]
	}
	return chunks
}

func reindex(chunks []types.Chunk) {
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
}

// deterministicChunkID derives a stable chunk UUID from (document, index)
// so re-running chunking on the same document reproduces identical IDs
// (§4.3 determinism, §4.1 idempotent re-entry).
func deterministicChunkID(documentID uuid.UUID, index int) uuid.UUID {
	name := documentID.String() + ":chunk:" + itoa(index)
	return uuid.NewSHA1(documentID, []byte(name))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}
