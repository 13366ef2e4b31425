package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/knowbase/internal/models"
)

// kbRecord is the wire shape of a knowledge base row. Record IDs and the
// flexible source_config object convert at this boundary so domain models
// stay SDK-free.
type kbRecord struct {
	ID            surrealmodels.RecordID `json:"id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Status        string                 `json:"status"`
	SourceType    string                 `json:"source_type"`
	SourceConfig  map[string]any         `json:"source_config"`
	Profiles      []string               `json:"profiles"`
	Priority      int                    `json:"priority"`
	Indexed       bool                   `json:"indexed"`
	CreatedAt     time.Time              `json:"created_at"`
	LastIndexedAt *time.Time             `json:"last_indexed_at,omitempty"`
}

func (r kbRecord) toModel() (*models.KnowledgeBase, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return nil, err
	}

	var cfg models.SourceConfig
	raw, err := json.Marshal(r.SourceConfig)
	if err != nil {
		return nil, fmt.Errorf("encode source config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode source config: %w", err)
	}

	return &models.KnowledgeBase{
		ID:            id,
		Name:          r.Name,
		Description:   r.Description,
		Status:        models.KBStatus(r.Status),
		SourceType:    models.SourceType(r.SourceType),
		SourceConfig:  cfg,
		Profiles:      r.Profiles,
		Priority:      r.Priority,
		Indexed:       r.Indexed,
		CreatedAt:     r.CreatedAt,
		LastIndexedAt: r.LastIndexedAt,
	}, nil
}

func sourceConfigMap(cfg models.SourceConfig) (map[string]any, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode source config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("reshape source config: %w", err)
	}
	return m, nil
}

// CreateKB inserts a knowledge base. Name collisions surface as
// ErrAlreadyExists through the unique index.
func (c *Client) CreateKB(ctx context.Context, kb *models.KnowledgeBase) error {
	cfgMap, err := sourceConfigMap(kb.SourceConfig)
	if err != nil {
		return err
	}

	_, err = surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("kb", $id) SET
			name = $name,
			description = $description,
			status = $status,
			source_type = $source_type,
			source_config = $source_config,
			profiles = $profiles,
			priority = $priority,
			indexed = false,
			created_at = $created_at
	`, map[string]any{
		"id":            kb.ID,
		"name":          kb.Name,
		"description":   kb.Description,
		"status":        string(kb.Status),
		"source_type":   string(kb.SourceType),
		"source_config": cfgMap,
		"profiles":      emptyIfNil(kb.Profiles),
		"priority":      kb.Priority,
		"created_at":    kb.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("create kb: %w", wrapQueryError(err))
	}
	return nil
}

// GetKB retrieves a knowledge base by ID. Returns ErrNotFound when absent.
func (c *Client) GetKB(ctx context.Context, id string) (*models.KnowledgeBase, error) {
	results, err := surrealdb.Query[[]kbRecord](ctx, c.db, `
		SELECT * FROM type::record("kb", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get kb: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("kb %s: %w", id, ErrNotFound)
	}
	return (*results)[0].Result[0].toModel()
}

// ListKBs returns all knowledge bases ordered by priority then name.
func (c *Client) ListKBs(ctx context.Context) ([]*models.KnowledgeBase, error) {
	results, err := surrealdb.Query[[]kbRecord](ctx, c.db, `
		SELECT * FROM kb ORDER BY priority DESC, name ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list kbs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	kbs := make([]*models.KnowledgeBase, 0, len((*results)[0].Result))
	for _, rec := range (*results)[0].Result {
		kb, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		kbs = append(kbs, kb)
	}
	return kbs, nil
}

// MarkKBIndexed flips the indexed flag and stamps last_indexed_at.
func (c *Client) MarkKBIndexed(ctx context.Context, id string, at time.Time) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("kb", $id) SET
			indexed = true,
			last_indexed_at = $at
	`, map[string]any{"id": id, "at": at})
	if err != nil {
		return fmt.Errorf("mark kb indexed: %w", err)
	}
	return nil
}

// DeleteKB removes a knowledge base and everything derived from it: its
// chunks and its job history.
func (c *Client) DeleteKB(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE chunk WHERE kb_id = $id;
		DELETE ingest_job WHERE kb_id = $id;
		DELETE type::record("kb", $id);
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete kb: %w", wrapQueryError(err))
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// recordIDString extracts the string part of a SurrealDB record ID.
func recordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected record ID type: %T", id.ID)
	}
	return s, nil
}
