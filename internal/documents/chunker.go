package documents

import "strings"

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 100
)

// Chunker splits text into overlapping chunks on word boundaries.
// Size and Overlap are measured in bytes of the whitespace-normalised text.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker returns a chunker, falling back to defaults for non-positive size
// and clamping overlap below size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return Chunker{Size: size, Overlap: overlap}
}

// Split returns the chunks of text. A single word longer than Size becomes its own chunk.
func (c Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end, length := start, 0
		for end < len(words) {
			add := len(words[end])
			if end > start {
				add++
			}
			if length+add > c.Size && end > start {
				break
			}
			length += add
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end >= len(words) {
			break
		}

		next, back := end, 0
		for next > start+1 && back+len(words[next-1])+1 <= c.Overlap {
			back += len(words[next-1]) + 1
			next--
		}
		start = next
	}
	return chunks
}
