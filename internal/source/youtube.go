package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"iter"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// TranscriptFetcher enumerates one document per video URL, built from the
// video's caption track. Videos without captions yield ErrNoCaptions as a
// per-item error.
type TranscriptFetcher struct {
	VideoURLs []string

	Client *http.Client
}

func (f *TranscriptFetcher) EstimatedTotal() int { return len(f.VideoURLs) }

func (f *TranscriptFetcher) Documents(ctx context.Context) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		client := f.Client
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}

		for _, videoURL := range f.VideoURLs {
			if ctx.Err() != nil {
				return
			}

			id, err := videoID(videoURL)
			if err != nil {
				if !yield(itemErr(videoURL, err)) {
					return
				}
				continue
			}

			transcript, err := fetchTranscript(ctx, client, id)
			if err != nil {
				if !yield(itemErr(videoURL, err)) {
					return
				}
				continue
			}

			doc := &Document{
				ID:      "youtube:" + id,
				Title:   id,
				Content: transcript,
				URL:     videoURL,
			}
			if !yield(Item{Doc: doc}) {
				return
			}
		}
	}
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// videoID extracts the 11-character video ID from watch, short and embed
// URL forms, or accepts a bare ID.
func videoID(raw string) (string, error) {
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid video url: %w", err)
	}

	host := strings.TrimPrefix(u.Host, "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if v := u.Query().Get("v"); videoIDPattern.MatchString(v) {
			return v, nil
		}
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok && videoIDPattern.MatchString(rest) {
				return rest, nil
			}
		}
	case "youtu.be":
		if id := strings.TrimPrefix(u.Path, "/"); videoIDPattern.MatchString(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("no video id in %q", raw)
}

type timedText struct {
	Texts []struct {
		Body string `xml:",chardata"`
	} `xml:"text"`
}

// fetchTranscript pulls the auto-generated English caption track via the
// timedtext endpoint and joins the cues into plain text.
func fetchTranscript(ctx context.Context, client *http.Client, id string) (string, error) {
	endpoint := "https://www.youtube.com/api/timedtext?lang=en&v=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("timedtext status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return "", err
	}
	// The endpoint answers 200 with an empty body when no track exists.
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", ErrNoCaptions
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("parse captions: %w", err)
	}
	if len(tt.Texts) == 0 {
		return "", ErrNoCaptions
	}

	var buf strings.Builder
	for _, cue := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(cue.Body))
		if text == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(text)
	}
	if buf.Len() == 0 {
		return "", ErrNoCaptions
	}
	return buf.String(), nil
}
