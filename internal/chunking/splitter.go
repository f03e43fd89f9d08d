// -----------------------------------------------------------------------
// Recursive character text splitter
// -----------------------------------------------------------------------

package chunking

import "strings"

// defaultSeparators are tried in order; the empty string forces a hard cut.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most Size bytes, preferring paragraph
// and line boundaries, with up to Overlap bytes repeated between adjacent
// chunks.
type Splitter struct {
	Size    int
	Overlap int
}

func NewSplitter(size, overlap int) *Splitter {
	if size < 1 {
		size = 500
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Splitter{Size: size, Overlap: overlap}
}

// Split returns the chunks of text. Whitespace-only chunks are dropped.
func (s *Splitter) Split(text string) []string {
	return s.split(text, defaultSeparators)
}

func (s *Splitter) split(text string, separators []string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= s.Size {
		return []string{text}
	}

	sep, rest := pickSeparator(text, separators)
	if sep == "" {
		return s.hardCut(text)
	}

	// SplitAfter keeps the separator attached so joins reproduce the text.
	pieces := strings.SplitAfter(text, sep)
	return s.merge(pieces, rest)
}

// pickSeparator returns the first separator present in the text and the
// separators remaining for recursion.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// merge greedily packs pieces into chunks of at most Size, carrying an
// Overlap-sized tail into the next chunk. Oversized pieces recurse on the
// remaining separators.
func (s *Splitter) merge(pieces []string, rest []string) []string {
	var chunks []string
	var current []string
	currentLen := 0

	emit := func() {
		if currentLen == 0 {
			return
		}
		joined := strings.Join(current, "")
		if strings.TrimSpace(joined) != "" {
			chunks = append(chunks, joined)
		}
	}

	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if len(piece) > s.Size {
			emit()
			current, currentLen = nil, 0
			chunks = append(chunks, s.split(piece, rest)...)
			continue
		}
		if currentLen+len(piece) > s.Size && currentLen > 0 {
			emit()
			// Keep a tail of at most Overlap bytes for continuity.
			for currentLen > s.Overlap || (currentLen+len(piece) > s.Size && currentLen > 0) {
				currentLen -= len(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		currentLen += len(piece)
	}
	emit()
	return chunks
}

// hardCut slices on rune boundaries when no separator applies.
func (s *Splitter) hardCut(text string) []string {
	step := s.Size - s.Overlap
	if step < 1 {
		step = s.Size
	}
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + s.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
