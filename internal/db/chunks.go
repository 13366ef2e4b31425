package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// ChunkRow is one embedded chunk ready for indexing.
type ChunkRow struct {
	KBID        string    `json:"kb_id"`
	DocID       string    `json:"doc_id"`
	DocTitle    string    `json:"doc_title,omitempty"`
	DocURL      string    `json:"doc_url,omitempty"`
	HeadingPath string    `json:"heading_path,omitempty"`
	ChunkIndex  int       `json:"chunk_index"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"embedding"`
	Tags        []string  `json:"tags"`
}

// SearchHit is one vector search result.
type SearchHit struct {
	ID       surrealmodels.RecordID `json:"id"`
	DocID    string                 `json:"doc_id"`
	DocTitle string                 `json:"doc_title"`
	Content  string                 `json:"content"`
	Score    float64                `json:"score"`
}

// IndexChunks writes a batch of embedded chunks inside one transaction, so
// a partially written batch never becomes visible.
func (c *Client) IndexChunks(ctx context.Context, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	for i := range rows {
		if rows[i].Tags == nil {
			rows[i].Tags = []string{}
		}
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		FOR $row IN $rows {
			CREATE chunk CONTENT $row;
		};
		COMMIT TRANSACTION;
	`, map[string]any{"rows": rows})
	if err != nil {
		return fmt.Errorf("index %d chunks: %w", len(rows), wrapQueryError(err))
	}
	return nil
}

// DeleteChunks removes every indexed chunk of one knowledge base.
func (c *Client) DeleteChunks(ctx context.Context, kbID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE chunk WHERE kb_id = $kb_id
	`, map[string]any{"kb_id": kbID})
	if err != nil {
		return fmt.Errorf("delete chunks: %w", wrapQueryError(err))
	}
	return nil
}

// CountChunks returns the number of indexed chunks for one KB.
func (c *Client) CountChunks(ctx context.Context, kbID string) (int, error) {
	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, `
		SELECT count() AS count FROM chunk WHERE kb_id = $kb_id GROUP ALL
	`, map[string]any{"kb_id": kbID})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// SearchChunks runs a KNN vector search over one KB's chunks.
func (c *Client) SearchChunks(ctx context.Context, kbID string, embedding []float32, limit int) ([]SearchHit, error) {
	sql := fmt.Sprintf(`
		SELECT id, doc_id, doc_title, content,
			vector::similarity::cosine(embedding, $emb) AS score
		FROM chunk
		WHERE kb_id = $kb_id AND embedding <|%d,40|> $emb
		ORDER BY score DESC
	`, limit)

	results, err := surrealdb.Query[[]SearchHit](ctx, c.db, sql, map[string]any{
		"kb_id": kbID,
		"emb":   embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}
