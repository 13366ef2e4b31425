package parser

import (
	"strings"
	"testing"
)

func TestChunkDoc_EmptyContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantZero bool
		wantLen  int
	}{
		{
			name:     "completely empty",
			content:  "",
			wantZero: true,
		},
		{
			name:     "whitespace only",
			content:  "   \n\n\t  ",
			wantZero: true,
		},
		{
			name:    "short content below threshold",
			content: "# Title\n\nSome actual content here.",
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.content)
			chunks := ChunkDoc(doc, DefaultChunkConfig())

			if tt.wantZero {
				if len(chunks) != 0 {
					t.Errorf("ChunkDoc() got %d chunks, want 0", len(chunks))
				}
				return
			}

			if len(chunks) != tt.wantLen {
				t.Errorf("ChunkDoc() got %d chunks, want %d", len(chunks), tt.wantLen)
			}
			for i, c := range chunks {
				if strings.TrimSpace(c.Text) == "" {
					t.Errorf("chunk[%d] is empty", i)
				}
			}
		})
	}
}

func TestChunkDoc_BelowThresholdSingleChunk(t *testing.T) {
	content := "# Guide\n\nA short document that fits in one chunk."
	chunks := ChunkDoc(Parse(content), DefaultChunkConfig())

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != content {
		t.Error("single chunk should carry the raw content")
	}
}

func TestChunkDoc_SectionsBecomeChunks(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# Guide\n\n")
	sb.WriteString("## Setup\n\n" + strings.Repeat("Setup instructions here. ", 20) + "\n\n")
	sb.WriteString("## Usage\n\n" + strings.Repeat("Usage instructions here. ", 20) + "\n\n")

	cfg := DefaultChunkConfig()
	chunks := ChunkDoc(Parse(sb.String()), cfg)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}

	foundSetup, foundUsage := false, false
	for _, c := range chunks {
		if strings.Contains(c.HeadingPath, "## Setup") {
			foundSetup = true
		}
		if strings.Contains(c.HeadingPath, "## Usage") {
			foundUsage = true
		}
	}
	if !foundSetup || !foundUsage {
		t.Errorf("heading paths missing sections: setup=%v usage=%v", foundSetup, foundUsage)
	}
}

func TestChunkDoc_IndexesAreSequential(t *testing.T) {
	content := strings.Repeat("A sentence of filler text for the chunker. ", 200)
	chunks := ChunkDoc(Parse(content), DefaultChunkConfig())

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want multiple", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk[%d].Index = %d", i, c.Index)
		}
	}
}

func TestChunkDoc_OversizedParagraphSplitsAtSentences(t *testing.T) {
	para := strings.Repeat("This is a sentence that keeps going for a while. ", 40)
	cfg := DefaultChunkConfig()
	chunks := ChunkDoc(Parse(para), cfg)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want multiple", len(chunks))
	}
	for i, c := range chunks {
		// Overlap can push a chunk slightly past MaxSize.
		if len(c.Text) > cfg.MaxSize+cfg.Overlap {
			t.Errorf("chunk[%d] length %d exceeds max %d plus overlap", i, len(c.Text), cfg.MaxSize)
		}
	}
}

func TestChunkDoc_TinySectionMergesIntoPredecessor(t *testing.T) {
	content := "# Doc\n\n" +
		"## Big\n\n" + strings.Repeat("Plenty of content in this part. ", 30) + "\n\n" +
		"## Tiny\n\nShort.\n"

	chunks := ChunkDoc(Parse(content), DefaultChunkConfig())
	for _, c := range chunks {
		if strings.Contains(c.HeadingPath, "Tiny") {
			t.Error("tiny section should merge into the previous chunk, not stand alone")
		}
	}

	merged := false
	for _, c := range chunks {
		if strings.Contains(c.Text, "Short.") {
			merged = true
		}
	}
	if !merged {
		t.Error("tiny section content lost")
	}
}

func TestApplyOverlap_CarriesTailForward(t *testing.T) {
	chunks := []Chunk{
		{Text: strings.Repeat("alpha beta gamma delta ", 10)},
		{Text: "second chunk text"},
	}
	out := applyOverlap(chunks, 20)

	if !strings.HasSuffix(out[1].Text, "second chunk text") {
		t.Error("original text lost")
	}
	if out[1].Text == "second chunk text" {
		t.Error("no overlap carried into the second chunk")
	}
	// Overlap starts at a word boundary.
	if strings.HasPrefix(out[1].Text, " ") {
		t.Error("overlap starts with whitespace")
	}
}

func TestSplitSentences_KeepsInitials(t *testing.T) {
	got := splitSentences("Ask J. Smith about it. Then decide.")
	if len(got) != 2 {
		t.Errorf("got %d sentences %q, want 2", len(got), got)
	}
}
