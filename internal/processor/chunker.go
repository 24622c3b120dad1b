package processor

import (
	"fmt"
	"regexp"
	"strings"
)

// headingPattern matches Markdown heading lines (levels 1-6).
var headingPattern = regexp.MustCompile(`^#{1,6}\s+(.+)$`)

// splitByHeaders splits content on Markdown heading lines. Each section
// becomes a candidate chunk carrying its heading; sections longer than the
// configured chunk size are re-split by the size strategy with part suffixes
// appended to the heading.
func (p *Processor) splitByHeaders(content string) []part {
	lines := strings.Split(content, "\n")

	type section struct {
		heading string
		lines   []string
	}

	sections := []section{{}}
	for _, line := range lines {
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			sections = append(sections, section{heading: strings.TrimSpace(m[1])})
		}
		sections[len(sections)-1].lines = append(sections[len(sections)-1].lines, line)
	}

	var parts []part
	for _, sec := range sections {
		text := strings.Join(sec.lines, "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		if len(text) <= p.config.ChunkSize {
			parts = append(parts, part{heading: sec.heading, text: text})
			continue
		}

		pieces := splitBySize(text, p.config.ChunkSize, p.config.ChunkOverlap)
		for i, piece := range pieces {
			heading := sec.heading
			if heading != "" {
				heading = fmt.Sprintf("%s (part %d)", heading, i+1)
			}
			parts = append(parts, part{heading: heading, text: piece})
		}
	}

	return parts
}

// splitBySize splits text into windows of at most size characters advancing
// by size-overlap. A window's end is pulled back to the nearest preceding
// sentence boundary (". ") or newline when that boundary falls after the
// window's midpoint, so chunks avoid mid-sentence cuts. The final partial
// remainder is emitted once; a remainder that is already the tail of the
// previous chunk is suppressed.
//
// With zero overlap the emitted chunks partition the input exactly.
func splitBySize(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	pos := 0
	for pos < len(text) {
		end := pos + size
		if end >= len(text) {
			tail := text[pos:]
			if len(chunks) > 0 && strings.HasSuffix(chunks[len(chunks)-1], tail) {
				break
			}
			chunks = append(chunks, tail)
			break
		}

		cut := end
		if boundary := boundaryBefore(text[pos:end]); boundary > size/2 {
			cut = pos + boundary
		}
		chunks = append(chunks, text[pos:cut])

		next := cut - overlap
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}

	return chunks
}

// boundaryBefore returns the cut position just after the last sentence
// boundary (". ") or newline in window, or -1 when there is none.
func boundaryBefore(window string) int {
	cut := -1
	if i := strings.LastIndex(window, ". "); i >= 0 {
		cut = i + 1 // keep the period with the sentence
	}
	if i := strings.LastIndexByte(window, '\n'); i+1 > cut {
		cut = i + 1
	}
	return cut
}
