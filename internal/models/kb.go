// Package models defines data structures for the Knowbase ingestion service.
package models

import "time"

// KBStatus is the lifecycle state of a knowledge base.
type KBStatus string

const (
	KBActive   KBStatus = "active"
	KBInactive KBStatus = "inactive"
	KBArchived KBStatus = "archived"
)

// KnowledgeBase is one ingestable content collection. Owned by the KB
// registry; the pipeline never mutates it directly. The indexed flag and
// last_indexed_at are flipped by the controller on job completion.
type KnowledgeBase struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Status        KBStatus     `json:"status"`
	SourceType    SourceType   `json:"source_type"`
	SourceConfig  SourceConfig `json:"source_config"`
	Profiles      []string     `json:"profiles,omitempty"`
	Priority      int          `json:"priority"`
	Indexed       bool         `json:"indexed"`
	CreatedAt     time.Time    `json:"created_at"`
	LastIndexedAt *time.Time   `json:"last_indexed_at,omitempty"`
}

// KBInput is the input for creating a knowledge base.
type KBInput struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	SourceConfig SourceConfig `json:"source_config"`
	Profiles     []string     `json:"profiles,omitempty"`
	Priority     int          `json:"priority"`
}
