package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

// PDFExtractor enumerates text extracted from PDF files given as local
// paths, remote URLs or a folder of PDFs. Remote files are downloaded
// concurrently up front; extraction itself is sequential.
type PDFExtractor struct {
	LocalPaths []string
	PDFURLs    []string
	FolderPath string

	Client *http.Client
}

const maxPDFDownloads = 4

func (e *PDFExtractor) EstimatedTotal() int {
	// Folder contents are unknown until walked.
	if e.FolderPath != "" {
		return 0
	}
	return len(e.LocalPaths) + len(e.PDFURLs)
}

func (e *PDFExtractor) Documents(ctx context.Context) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		paths := append([]string{}, e.LocalPaths...)
		if e.FolderPath != "" {
			folderPaths, err := collectPDFs(e.FolderPath)
			if err != nil {
				if !yield(itemErr(e.FolderPath, err)) {
					return
				}
			}
			paths = append(paths, folderPaths...)
		}

		for _, path := range paths {
			if ctx.Err() != nil {
				return
			}
			if !yield(extractFile(path, path)) {
				return
			}
		}

		if len(e.PDFURLs) > 0 {
			for _, item := range e.downloadAndExtract(ctx) {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// downloadAndExtract fetches all remote PDFs with bounded concurrency and
// returns one item per URL, in URL order. Download failures become
// per-item errors, never a failure of the whole batch.
func (e *PDFExtractor) downloadAndExtract(ctx context.Context) []Item {
	client := e.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	items := make([]Item, len(e.PDFURLs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPDFDownloads)

	for i, pdfURL := range e.PDFURLs {
		g.Go(func() error {
			path, err := download(ctx, client, pdfURL)
			if err != nil {
				items[i] = itemErr(pdfURL, err)
				return nil
			}
			defer os.Remove(path)
			items[i] = extractFile(pdfURL, path)
			return nil
		})
	}
	g.Wait()

	return items
}

func download(ctx context.Context, client *http.Client, pdfURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "knowbase-*.pdf")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// extractFile reads the plain text of one PDF. The id is the caller-facing
// identifier (original path or URL), path the readable file on disk.
func extractFile(id, path string) Item {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return itemErr(id, fmt.Errorf("open pdf: %w", err))
	}
	defer f.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return itemErr(id, fmt.Errorf("extract text: %w", err))
	}
	var buf strings.Builder
	if _, err := io.Copy(&buf, textReader); err != nil {
		return itemErr(id, fmt.Errorf("extract text: %w", err))
	}

	title := strings.TrimSuffix(filepath.Base(id), filepath.Ext(id))
	return Item{Doc: &Document{
		ID:      id,
		Title:   title,
		Content: buf.String(),
	}}
}

func collectPDFs(folder string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
