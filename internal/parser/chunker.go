package parser

import (
	"strings"
	"unicode"
)

// Chunk is one embeddable piece of a document.
type Chunk struct {
	Text        string
	Index       int    // order within the document
	HeadingPath string // section breadcrumb, empty for plain text
}

// ChunkConfig controls chunk sizing.
type ChunkConfig struct {
	Threshold  int // content shorter than this stays a single chunk
	TargetSize int // ideal chunk size in bytes
	MinSize    int // smaller sections merge into their predecessor
	MaxSize    int // larger pieces split at paragraph/sentence boundaries
	Overlap    int // character overlap carried between adjacent chunks
}

// DefaultChunkConfig returns the pipeline defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Threshold:  1500,
		TargetSize: 750,
		MinSize:    200,
		MaxSize:    1000,
		Overlap:    100,
	}
}

// ChunkDoc splits a parsed document into semantic chunks, preferring
// section boundaries, then paragraphs, then sentences. Empty content
// yields no chunks.
func ChunkDoc(doc *Doc, cfg ChunkConfig) []Chunk {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	if len(doc.Content) <= cfg.Threshold {
		return []Chunk{{Text: doc.Content, Index: 0}}
	}

	var chunks []Chunk
	if len(doc.Sections) > 0 {
		chunks = chunkSections(doc.Sections, cfg)
	} else {
		for _, text := range splitParagraphBlocks(doc.Content, cfg) {
			chunks = append(chunks, Chunk{Text: text})
		}
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return applyOverlap(chunks, cfg.Overlap)
}

func chunkSections(sections []Section, cfg ChunkConfig) []Chunk {
	var chunks []Chunk
	for _, sec := range sections {
		if strings.TrimSpace(sec.Content) == "" {
			continue
		}

		if len(sec.Content) <= cfg.MaxSize {
			if len(sec.Content) >= cfg.MinSize || len(chunks) == 0 {
				chunks = append(chunks, Chunk{Text: sec.Content, HeadingPath: sec.Path})
			} else {
				// Tiny section merges into the previous chunk.
				last := &chunks[len(chunks)-1]
				last.Text += "\n\n" + sec.Content
			}
			continue
		}

		for _, text := range splitParagraphBlocks(sec.Content, cfg) {
			chunks = append(chunks, Chunk{Text: text, HeadingPath: sec.Path})
		}
	}
	return chunks
}

// splitParagraphBlocks packs paragraphs up to MaxSize, splitting oversized
// paragraphs at sentence boundaries.
func splitParagraphBlocks(content string, cfg ChunkConfig) []string {
	var out []string
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
	}

	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if buf.Len()+len(para) > cfg.MaxSize && buf.Len() > 0 {
			flush()
		}

		if len(para) > cfg.MaxSize {
			flush()
			out = append(out, splitSentenceBlocks(para, cfg.TargetSize)...)
			continue
		}

		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	flush()

	return out
}

func splitSentenceBlocks(text string, target int) []string {
	var out []string
	var buf strings.Builder

	for _, sentence := range splitSentences(text) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if buf.Len()+len(sentence) > target && buf.Len() > 0 {
			out = append(out, strings.TrimSpace(buf.String()))
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(sentence)
	}
	if buf.Len() > 0 {
		out = append(out, strings.TrimSpace(buf.String()))
	}
	return out
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		// "J. Smith" style initials keep the sentence open.
		if i > 1 && unicode.IsUpper(runes[i-1]) {
			continue
		}
		sentences = append(sentences, current.String())
		current.Reset()
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

func applyOverlap(chunks []Chunk, overlap int) []Chunk {
	if overlap <= 0 || len(chunks) <= 1 {
		return chunks
	}
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		if len(prev) <= overlap {
			continue
		}
		tail := prev[len(prev)-overlap:]
		if idx := strings.LastIndex(tail, " "); idx > 0 {
			tail = tail[idx+1:]
		}
		chunks[i].Text = tail + " " + chunks[i].Text
	}
	return chunks
}
