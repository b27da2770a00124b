package chunking

import (
	"strings"
	"unicode"
)

const defaultChunkSize = 900

// Splitter cuts extracted document text into overlapping windows sized in
// runes. Window ends snap back to the nearest whitespace when one is close,
// so words stay whole and retrieval does not index half a term.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/max(1, s.ChunkSize-s.Overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.snapToBoundary(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			// Minimum progress even when snapping ate into the overlap.
			next = end
		}
		start = next
	}
	return out
}

// snapToBoundary walks back from end looking for whitespace, at most a
// quarter of the window. Prose almost always has a break that close; text
// without any (URLs, base64 blobs) keeps the hard cut.
func (s *Splitter) snapToBoundary(runes []rune, start, end int) int {
	limit := end - s.ChunkSize/4
	if limit <= start {
		limit = start + 1
	}
	for i := end - 1; i >= limit; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}
