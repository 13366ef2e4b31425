package source

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// WebsiteCrawler enumerates pages breadth-first from a start URL, following
// same-host links that match the optional path prefix, up to MaxPages.
type WebsiteCrawler struct {
	StartURL  string
	URLPrefix string
	MaxPages  int

	// Client overrides the HTTP client (tests). Nil uses a 30s-timeout default.
	Client *http.Client
}

const maxPageBody = 4 << 20 // 4 MiB per page

// EstimatedTotal is the page cap; the crawl may find fewer.
func (c *WebsiteCrawler) EstimatedTotal() int { return c.MaxPages }

// Documents crawls lazily: each yielded item is one fetched page. A page
// that fails to fetch or parse yields a per-item error and the crawl
// continues with the remaining frontier.
func (c *WebsiteCrawler) Documents(ctx context.Context) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		start, err := url.Parse(c.StartURL)
		if err != nil {
			yield(itemErr(c.StartURL, err))
			return
		}

		client := c.Client
		if client == nil {
			client = &http.Client{Timeout: 30 * time.Second}
		}

		queue := []*url.URL{start}
		seen := map[string]bool{normalize(start): true}
		fetched := 0

		for len(queue) > 0 && fetched < c.MaxPages {
			if ctx.Err() != nil {
				return
			}
			page := queue[0]
			queue = queue[1:]
			fetched++

			body, err := c.fetch(ctx, client, page)
			if err != nil {
				if !yield(itemErr(page.String(), err)) {
					return
				}
				continue
			}

			title, text, links := parsePage(page, body)
			doc := &Document{
				ID:      normalize(page),
				Title:   title,
				Content: text,
				URL:     page.String(),
			}
			if !yield(Item{Doc: doc}) {
				return
			}

			for _, link := range links {
				key := normalize(link)
				if seen[key] || !c.inScope(link, start) {
					continue
				}
				seen[key] = true
				queue = append(queue, link)
			}
		}
	}
}

func (c *WebsiteCrawler) fetch(ctx context.Context, client *http.Client, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "knowbase-crawler/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("not an HTML page: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// inScope keeps the crawl on the start host and under the configured prefix.
func (c *WebsiteCrawler) inScope(link, start *url.URL) bool {
	if link.Host != start.Host {
		return false
	}
	if c.URLPrefix != "" && !strings.HasPrefix(link.String(), c.URLPrefix) {
		return false
	}
	return link.Scheme == "http" || link.Scheme == "https"
}

// parsePage extracts the title, visible text and outgoing links from an
// HTML page. Cleaning quality is not a goal: scripts and styles are
// dropped, everything else is concatenated text.
func parsePage(base *url.URL, body string) (title, text string, links []*url.URL) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", body, nil
	}

	var buf strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "a":
				for _, attr := range n.Attr {
					if attr.Key != "href" {
						continue
					}
					if ref, err := base.Parse(attr.Val); err == nil {
						ref.Fragment = ""
						links = append(links, ref)
					}
				}
			}
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				buf.WriteString(t)
				buf.WriteString("\n")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return title, buf.String(), links
}

func normalize(u *url.URL) string {
	n := *u
	n.Fragment = ""
	return strings.TrimSuffix(n.String(), "/")
}
