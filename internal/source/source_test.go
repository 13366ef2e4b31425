package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/knowbase/internal/models"
)

func collect(t *testing.T, src DocumentSource) (docs []*Document, errs []error) {
	t.Helper()
	for item := range src.Documents(context.Background()) {
		if item.Err != nil {
			errs = append(errs, item.Err)
			continue
		}
		docs = append(docs, item.Doc)
	}
	return docs, errs
}

func TestNew_DispatchesOnType(t *testing.T) {
	tests := []struct {
		cfg  models.SourceConfig
		want any
	}{
		{
			cfg:  models.SourceConfig{Type: models.SourceMarkdown, Markdown: &models.MarkdownSource{FolderPath: "."}},
			want: &MarkdownWalker{},
		},
		{
			cfg:  models.SourceConfig{Type: models.SourceWebsite, Website: &models.WebsiteSource{StartURL: "https://example.com", MaxPages: 5}},
			want: &WebsiteCrawler{},
		},
		{
			cfg:  models.SourceConfig{Type: models.SourceYouTube, YouTube: &models.YouTubeSource{VideoURLs: []string{"https://youtu.be/dQw4w9WgXcQ"}}},
			want: &TranscriptFetcher{},
		},
		{
			cfg:  models.SourceConfig{Type: models.SourcePDF, PDF: &models.PDFSource{FolderPath: "."}},
			want: &PDFExtractor{},
		},
	}

	for _, tt := range tests {
		src, err := New(tt.cfg)
		if err != nil {
			t.Fatalf("New(%s) error = %v", tt.cfg.Type, err)
		}
		switch tt.want.(type) {
		case *MarkdownWalker:
			if _, ok := src.(*MarkdownWalker); !ok {
				t.Errorf("New(%s) = %T", tt.cfg.Type, src)
			}
		case *WebsiteCrawler:
			if _, ok := src.(*WebsiteCrawler); !ok {
				t.Errorf("New(%s) = %T", tt.cfg.Type, src)
			}
		case *TranscriptFetcher:
			if _, ok := src.(*TranscriptFetcher); !ok {
				t.Errorf("New(%s) = %T", tt.cfg.Type, src)
			}
		case *PDFExtractor:
			if _, ok := src.(*PDFExtractor); !ok {
				t.Errorf("New(%s) = %T", tt.cfg.Type, src)
			}
		}
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(models.SourceConfig{Type: models.SourceMarkdown, Markdown: &models.MarkdownSource{}})
	if err == nil {
		t.Error("invalid config accepted")
	}
}

func TestMarkdownWalker_YieldsFolderRelativeDocs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "intro.md", "# Intro\n\nHello.")
	writeFile(t, dir, "guides/setup.markdown", "# Setup\n\nSteps.")
	writeFile(t, dir, "notes.txt", "not markdown")

	docs, errs := collect(t, &MarkdownWalker{Folder: dir})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}

	ids := map[string]bool{}
	for _, d := range docs {
		ids[d.ID] = true
		if d.Content == "" {
			t.Errorf("doc %s has empty content", d.ID)
		}
	}
	if !ids["intro.md"] || !ids[filepath.Join("guides", "setup.markdown")] {
		t.Errorf("unexpected doc IDs: %v", ids)
	}
}

func TestMarkdownWalker_MissingFolderYieldsError(t *testing.T) {
	docs, errs := collect(t, &MarkdownWalker{Folder: filepath.Join(t.TempDir(), "nope")})
	if len(docs) != 0 {
		t.Errorf("got %d docs from missing folder", len(docs))
	}
	if len(errs) == 0 {
		t.Error("missing folder produced no error item")
	}
}

func TestWebsiteCrawler_FollowsLinksWithinScope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/docs/":
			w.Write([]byte(`<html><head><title>Home</title></head><body>
				<a href="/docs/a">A</a>
				<a href="/docs/b">B</a>
				<a href="/other/x">out of prefix</a>
				<a href="https://elsewhere.example.com/">external</a>
			</body></html>`))
		case "/docs/a":
			w.Write([]byte(`<html><head><title>A</title></head><body>Alpha content <a href="/docs/">home</a></body></html>`))
		case "/docs/b":
			w.Write([]byte(`<html><head><title>B</title></head><body>Beta content</body></html>`))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/other/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("crawler escaped the prefix: %s", r.URL.Path)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	crawler := &WebsiteCrawler{
		StartURL:  srv.URL + "/docs/",
		URLPrefix: srv.URL + "/docs",
		MaxPages:  10,
		Client:    srv.Client(),
	}

	docs, errs := collect(t, crawler)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d pages, want 3", len(docs))
	}

	titles := map[string]bool{}
	for _, d := range docs {
		titles[d.Title] = true
	}
	for _, want := range []string{"Home", "A", "B"} {
		if !titles[want] {
			t.Errorf("page %q not crawled; got %v", want, titles)
		}
	}
}

func TestWebsiteCrawler_RespectsMaxPages(t *testing.T) {
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.Header().Set("Content-Type", "text/html")
		// Every page links to a fresh one; only MaxPages get fetched.
		w.Write([]byte(`<html><body><a href="/next` + r.URL.Path + `x">next</a></body></html>`))
	}))
	defer srv.Close()

	crawler := &WebsiteCrawler{StartURL: srv.URL, MaxPages: 3, Client: srv.Client()}
	docs, _ := collect(t, crawler)

	if len(docs) != 3 {
		t.Errorf("got %d docs, want 3", len(docs))
	}
	if served != 3 {
		t.Errorf("server saw %d requests, want 3", served)
	}
}

func TestWebsiteCrawler_FailedPageIsPerItemError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/broken" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`<html><body>ok <a href="/broken">broken</a> <a href="/fine">fine</a></body></html>`))
	}))
	defer srv.Close()

	crawler := &WebsiteCrawler{StartURL: srv.URL, MaxPages: 5, Client: srv.Client()}
	docs, errs := collect(t, crawler)

	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1 for the broken page", len(errs))
	}
	if len(docs) < 2 {
		t.Errorf("crawl stopped after the broken page: %d docs", len(docs))
	}
}

func TestVideoID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{in: "https://youtu.be/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{in: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{in: "https://www.youtube.com/shorts/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{in: "dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{in: "https://www.youtube.com/watch?v=too-short", wantErr: true},
		{in: "https://vimeo.com/12345", wantErr: true},
	}

	for _, tt := range tests {
		got, err := videoID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("videoID(%q) = %q, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("videoID(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("videoID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPDFExtractor_BadFileIsPerItemError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.pdf", "this is not a pdf")

	ext := &PDFExtractor{FolderPath: dir}
	docs, errs := collect(t, ext)

	if len(docs) != 0 {
		t.Errorf("got %d docs from a broken pdf", len(docs))
	}
	if len(errs) != 1 {
		t.Errorf("got %d errors, want 1", len(errs))
	}
}

func TestPDFExtractor_EstimatedTotal(t *testing.T) {
	ext := &PDFExtractor{LocalPaths: []string{"a.pdf"}, PDFURLs: []string{"https://example.com/b.pdf"}}
	if got := ext.EstimatedTotal(); got != 2 {
		t.Errorf("EstimatedTotal() = %d, want 2", got)
	}

	ext = &PDFExtractor{FolderPath: "/some/folder"}
	if got := ext.EstimatedTotal(); got != 0 {
		t.Errorf("EstimatedTotal() with folder = %d, want 0 (unknown)", got)
	}
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestErrNoCaptionsIsSentinel(t *testing.T) {
	wrapped := itemErr("vid", ErrNoCaptions)
	if !errors.Is(wrapped.Err, ErrNoCaptions) {
		t.Error("wrapped caption error lost its sentinel")
	}
}
