// Package source implements document enumeration for the four supported
// knowledge base source types. Each implementation yields a finite lazy
// sequence of raw documents; errors on individual items are per-document
// and never abort enumeration.
package source

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/raphaelgruber/knowbase/internal/models"
)

// Document is one raw unit of content fetched from a source. Extraction
// quality is out of scope here: content is whatever the source hands back.
type Document struct {
	ID      string // stable within the source config, used for checkpoints
	Title   string
	Content string
	URL     string
	Tags    []string
}

// Item is one enumeration result: a document or a per-item error.
type Item struct {
	Doc *Document
	Err error
}

// DocumentSource enumerates the documents of one source config.
type DocumentSource interface {
	// Documents yields items lazily. The sequence is finite for all four
	// source types and stops early when ctx is cancelled.
	Documents(ctx context.Context) iter.Seq[Item]

	// EstimatedTotal returns the expected document count for progress
	// reporting, or 0 when the total is unknown until enumeration ends.
	EstimatedTotal() int
}

// ErrNoCaptions means a video exposes no transcript track.
var ErrNoCaptions = errors.New("no captions available")

// New selects the DocumentSource implementation by explicit dispatch on the
// config's source type.
func New(cfg models.SourceConfig) (DocumentSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case models.SourceMarkdown:
		return &MarkdownWalker{Folder: cfg.Markdown.FolderPath}, nil
	case models.SourceWebsite:
		return &WebsiteCrawler{
			StartURL:  cfg.Website.StartURL,
			URLPrefix: cfg.Website.URLPrefix,
			MaxPages:  cfg.Website.MaxPages,
		}, nil
	case models.SourceYouTube:
		return &TranscriptFetcher{VideoURLs: cfg.YouTube.VideoURLs}, nil
	case models.SourcePDF:
		return &PDFExtractor{
			LocalPaths: cfg.PDF.LocalPaths,
			PDFURLs:    cfg.PDF.PDFURLs,
			FolderPath: cfg.PDF.FolderPath,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownSourceType, cfg.Type)
	}
}

func itemErr(id string, err error) Item {
	return Item{Err: fmt.Errorf("%s: %w", id, err)}
}
