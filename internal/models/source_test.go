package models

import (
	"errors"
	"testing"
)

func TestSourceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SourceConfig
		wantErr error
		wantOK  bool
	}{
		{
			name:   "valid website",
			cfg:    SourceConfig{Type: SourceWebsite, Website: &WebsiteSource{StartURL: "https://docs.example.com", MaxPages: 50}},
			wantOK: true,
		},
		{
			name: "website missing config",
			cfg:  SourceConfig{Type: SourceWebsite},

			wantErr: ErrEmptySourceConfig,
		},
		{
			name: "website bad url",
			cfg:  SourceConfig{Type: SourceWebsite, Website: &WebsiteSource{StartURL: "not a url", MaxPages: 10}},
		},
		{
			name: "website zero max pages",
			cfg:  SourceConfig{Type: SourceWebsite, Website: &WebsiteSource{StartURL: "https://example.com", MaxPages: 0}},
		},
		{
			name:   "valid youtube",
			cfg:    SourceConfig{Type: SourceYouTube, YouTube: &YouTubeSource{VideoURLs: []string{"https://youtu.be/dQw4w9WgXcQ"}}},
			wantOK: true,
		},
		{
			name: "youtube no videos",
			cfg:  SourceConfig{Type: SourceYouTube, YouTube: &YouTubeSource{}},
		},
		{
			name:   "valid pdf with folder",
			cfg:    SourceConfig{Type: SourcePDF, PDF: &PDFSource{FolderPath: "/data/pdfs"}},
			wantOK: true,
		},
		{
			name: "pdf with nothing set",
			cfg:  SourceConfig{Type: SourcePDF, PDF: &PDFSource{}},
		},
		{
			name:   "valid markdown",
			cfg:    SourceConfig{Type: SourceMarkdown, Markdown: &MarkdownSource{FolderPath: "./notes"}},
			wantOK: true,
		},
		{
			name: "markdown empty folder",
			cfg:  SourceConfig{Type: SourceMarkdown, Markdown: &MarkdownSource{}},
		},
		{
			name:    "unknown type",
			cfg:     SourceConfig{Type: "rss"},
			wantErr: ErrUnknownSourceType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantOK {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobNotStarted: false,
		JobPending:    false,
		JobRunning:    false,
		JobPaused:     false,
		JobCompleted:  true,
		JobFailed:     true,
	}
	for status, want := range terminal {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}

func TestIngestionJob_CloneIsDeep(t *testing.T) {
	errMsg := "boom"
	j := &IngestionJob{
		JobID:        "j1",
		Status:       JobFailed,
		Error:        &errMsg,
		PhaseDetails: []PhaseDetail{{Name: PhaseLoading, Status: JobCompleted}},
		Checkpoint:   []byte(`{"version":1}`),
	}

	cp := j.Clone()
	cp.PhaseDetails[0].Status = JobFailed
	*cp.Error = "changed"
	cp.Checkpoint[0] = 'X'

	if j.PhaseDetails[0].Status != JobCompleted {
		t.Error("clone shares phase details")
	}
	if *j.Error != "boom" {
		t.Error("clone shares error pointer")
	}
	if j.Checkpoint[0] != '{' {
		t.Error("clone shares checkpoint bytes")
	}
}
