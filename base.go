package nocodb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Base is a named group of tables. Like Table it is a read-mostly view:
// every listing re-queries the server, nothing is cached.
type Base struct {
	noco *NocoDB

	ID    string
	Title string

	// Metadata is the raw base object as returned by the server.
	Metadata map[string]any
}

func newBase(noco *NocoDB, meta map[string]any) *Base {
	return &Base{
		noco:     noco,
		ID:       stringField(meta, "id"),
		Title:    stringField(meta, "title"),
		Metadata: meta,
	}
}

// GetTables lists the tables of this base.
func (b *Base) GetTables(ctx context.Context) ([]*Table, error) {
	raw, err := b.noco.Call(ctx, http.MethodGet, "meta/bases/"+b.ID+"/tables", nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope listEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode table list for base %s: %w", b.ID, err)
	}

	tables := make([]*Table, 0, len(envelope.List))
	for _, meta := range envelope.List {
		tables = append(tables, newTable(b.noco, meta))
	}
	return tables, nil
}

// GetTable fetches one table of this base by id.
func (b *Base) GetTable(ctx context.Context, tableID string) (*Table, error) {
	return b.noco.GetTable(ctx, tableID)
}

// GetTableByTitle finds a table by exact title.
func (b *Base) GetTableByTitle(ctx context.Context, title string) (*Table, error) {
	tables, err := b.GetTables(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Title == title {
			return t, nil
		}
	}
	return nil, TableNotFoundError{Base: b.Title, Title: title}
}

// CreateTable creates a table in this base and returns it.
func (b *Base) CreateTable(ctx context.Context, title string) (*Table, error) {
	raw, err := b.noco.Call(ctx, http.MethodPost, "meta/bases/"+b.ID+"/tables", nil, map[string]any{"title": title})
	if err != nil {
		return nil, err
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode created table: %w", err)
	}
	b.noco.logger.Info().Str("base", b.Title).Str("table", title).Msg("table created")
	return newTable(b.noco, meta), nil
}

// GetBaseInfo returns deployment information for this base.
func (b *Base) GetBaseInfo(ctx context.Context) (map[string]any, error) {
	raw, err := b.noco.Call(ctx, http.MethodGet, "meta/bases/"+b.ID+"/info", nil, nil)
	if err != nil {
		return nil, err
	}

	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode base info: %w", err)
	}
	return info, nil
}

// Delete removes the base.
func (b *Base) Delete(ctx context.Context) error {
	_, err := b.noco.Call(ctx, http.MethodDelete, "meta/bases/"+b.ID, nil, nil)
	if err != nil {
		return err
	}
	b.noco.logger.Info().Str("base", b.Title).Msg("base deleted")
	return nil
}
