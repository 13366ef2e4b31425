package models

import (
	"errors"
	"fmt"
	"net/url"
)

// SourceType identifies the kind of content a knowledge base ingests.
type SourceType string

const (
	SourceWebsite  SourceType = "website"
	SourceYouTube  SourceType = "youtube"
	SourcePDF      SourceType = "pdf"
	SourceMarkdown SourceType = "markdown"
)

// Validation errors for source configs.
var (
	ErrUnknownSourceType = errors.New("unknown source type")
	ErrEmptySourceConfig = errors.New("source config missing for source type")
)

// WebsiteSource crawls pages starting from a URL, optionally restricted
// to a path prefix, up to a page limit.
type WebsiteSource struct {
	StartURL  string `json:"start_url"`
	URLPrefix string `json:"url_prefix,omitempty"`
	MaxPages  int    `json:"max_pages"`
}

// YouTubeSource fetches transcripts for a fixed list of videos.
type YouTubeSource struct {
	VideoURLs []string `json:"video_urls"`
}

// PDFSource extracts text from local files, remote URLs, or a folder of PDFs.
// At least one of the three must be set.
type PDFSource struct {
	LocalPaths []string `json:"local_paths,omitempty"`
	PDFURLs    []string `json:"pdf_urls,omitempty"`
	FolderPath string   `json:"folder_path,omitempty"`
}

// MarkdownSource walks a folder tree of markdown files.
type MarkdownSource struct {
	FolderPath string `json:"folder_path"`
}

// SourceConfig is a tagged variant: exactly the field matching Type is set.
// Immutable once an ingestion job has started.
type SourceConfig struct {
	Type     SourceType      `json:"type"`
	Website  *WebsiteSource  `json:"website,omitempty"`
	YouTube  *YouTubeSource  `json:"youtube,omitempty"`
	PDF      *PDFSource      `json:"pdf,omitempty"`
	Markdown *MarkdownSource `json:"markdown,omitempty"`
}

// Validate checks that the variant matching Type is present and well-formed.
func (c SourceConfig) Validate() error {
	switch c.Type {
	case SourceWebsite:
		if c.Website == nil {
			return fmt.Errorf("%w: %s", ErrEmptySourceConfig, c.Type)
		}
		if c.Website.StartURL == "" {
			return errors.New("website source: start_url is required")
		}
		u, err := url.Parse(c.Website.StartURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("website source: invalid start_url %q", c.Website.StartURL)
		}
		if c.Website.MaxPages <= 0 {
			return errors.New("website source: max_pages must be positive")
		}
		return nil

	case SourceYouTube:
		if c.YouTube == nil {
			return fmt.Errorf("%w: %s", ErrEmptySourceConfig, c.Type)
		}
		if len(c.YouTube.VideoURLs) == 0 {
			return errors.New("youtube source: at least one video URL is required")
		}
		for _, v := range c.YouTube.VideoURLs {
			if _, err := url.Parse(v); err != nil {
				return fmt.Errorf("youtube source: invalid video URL %q", v)
			}
		}
		return nil

	case SourcePDF:
		if c.PDF == nil {
			return fmt.Errorf("%w: %s", ErrEmptySourceConfig, c.Type)
		}
		if len(c.PDF.LocalPaths) == 0 && len(c.PDF.PDFURLs) == 0 && c.PDF.FolderPath == "" {
			return errors.New("pdf source: one of local_paths, pdf_urls or folder_path is required")
		}
		return nil

	case SourceMarkdown:
		if c.Markdown == nil {
			return fmt.Errorf("%w: %s", ErrEmptySourceConfig, c.Type)
		}
		if c.Markdown.FolderPath == "" {
			return errors.New("markdown source: folder_path is required")
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownSourceType, c.Type)
	}
}
