package ttsengine

import "strings"

// DefaultMinChunkChars is the documented default minimum chunk length
// (spec §4.7).
const DefaultMinChunkChars = 8

// sentenceBoundaries are the punctuation runes that terminate a chunk.
var sentenceBoundaries = map[rune]bool{'.': true, '!': true, '?': true}

// SplitIntoChunks splits text into sentence chunks on `. ! ?`, merging any
// trailing fragment shorter than minChunkChars into the previous chunk
// (Open Question decision, §13): a fragment is only merged when it is
// both trailing (the last one produced) and strictly shorter than
// minChunkChars; it is never merged mid-stream, and a fragment at or
// above minChunkChars is kept standalone even as the final chunk.
func SplitIntoChunks(text string, minChunkChars int) []string {
	if minChunkChars <= 0 {
		minChunkChars = DefaultMinChunkChars
	}

	var chunks []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if sentenceBoundaries[r] {
			if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			current.Reset()
		}
	}
	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		chunks = append(chunks, trimmed)
	}

	if len(chunks) < 2 {
		return chunks
	}

	last := chunks[len(chunks)-1]
	if len([]rune(last)) < minChunkChars {
		merged := chunks[:len(chunks)-1]
		merged[len(merged)-1] = merged[len(merged)-1] + " " + last
		return merged
	}
	return chunks
}
