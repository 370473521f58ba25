package nocodb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Record is the identity and attribute bag of one remote row. Its
// identity is (table id, record id); the attribute bag reflects whatever
// the last fetch returned, last-fetch-wins, no merging. Records are
// immutable by convention: every mutation returns a replacement Record
// fetched fresh from the server.
type Record struct {
	table *Table

	// ID is the server-assigned row identifier, never reassigned.
	ID int

	// Attributes maps field titles to values. Attachment fields hold
	// lists of descriptor objects carrying a signedUrl.
	Attributes map[string]any
}

func newRecord(t *Table, row map[string]any) *Record {
	id, _ := coerceID(row["Id"])
	return &Record{
		table:      t,
		ID:         id,
		Attributes: row,
	}
}

// Table returns the owning table. The reference is non-owning; the table
// holds no Records.
func (r *Record) Table() *Table { return r.table }

// Same reports whether two records denote the same remote row. Identity
// is (table id, record id); attribute bags may differ in freshness and
// are not compared.
func (r *Record) Same(other *Record) bool {
	return other != nil && r.table.ID == other.table.ID && r.ID == other.ID
}

// Attribute returns a field value from the local attribute bag without
// touching the network. The value is as fresh as the fetch that produced
// this Record.
func (r *Record) Attribute(field string) any {
	return r.Attributes[field]
}

// Values fetches field values fresh from the server. With fields empty
// all fields are returned. With includeSystem false, requested fields are
// restricted to the table's non-system columns.
func (r *Record) Values(ctx context.Context, fields []string, includeSystem bool) (map[string]any, error) {
	if !includeSystem {
		cols, err := r.table.GetColumns(ctx, false)
		if err != nil {
			return nil, err
		}
		titles := map[string]bool{}
		for _, c := range cols {
			titles[c.Title] = true
		}
		if len(fields) > 0 {
			kept := make([]string, 0, len(fields))
			for _, f := range fields {
				if titles[f] {
					kept = append(kept, f)
				}
			}
			fields = kept
		} else {
			for _, c := range cols {
				fields = append(fields, c.Title)
			}
		}
	}

	params := url.Values{}
	params.Set("fields", strings.Join(fields, ","))

	raw, err := r.table.noco.Call(ctx, http.MethodGet, r.table.recordPath(r.ID), params, nil)
	if err != nil {
		return nil, err
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to decode values of record %d: %w", r.ID, err)
	}
	return values, nil
}

// Value fetches one field value fresh from the server.
func (r *Record) Value(ctx context.Context, field string) (any, error) {
	values, err := r.Values(ctx, []string{field}, true)
	if err != nil {
		return nil, err
	}
	return values[field], nil
}

// ColumnValue fetches the value of the given column.
func (r *Record) ColumnValue(ctx context.Context, column Column) (any, error) {
	return r.Value(ctx, column.Title)
}

// Attachments downloads the files of an attachment field. The field value
// must be a list of attachment descriptors; anything else is an
// InvalidFieldError, raised immediately with no fallback.
func (r *Record) Attachments(ctx context.Context, field string) ([][]byte, error) {
	value, err := r.Value(ctx, field)
	if err != nil {
		return nil, err
	}

	descriptors, ok := value.([]any)
	if !ok {
		return nil, InvalidFieldError{Field: field}
	}

	files := make([][]byte, 0, len(descriptors))
	for _, d := range descriptors {
		descriptor, ok := d.(map[string]any)
		if !ok {
			return nil, InvalidFieldError{Field: field}
		}
		data, err := r.table.noco.GetFile(ctx, stringField(descriptor, "signedUrl"))
		if err != nil {
			return nil, err
		}
		files = append(files, data)
	}
	return files, nil
}

// Update patches the given fields and returns the replacement Record
// fetched fresh from the server. The receiver is not mutated.
func (r *Record) Update(ctx context.Context, fields map[string]any) (*Record, error) {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["Id"] = r.ID

	raw, err := r.table.noco.Call(ctx, http.MethodPatch, "tables/"+r.table.ID+"/records", nil, payload)
	if err != nil {
		return nil, err
	}

	var echo idEcho
	if err := json.Unmarshal(raw, &echo); err != nil {
		return nil, fmt.Errorf("failed to decode update response for record %d: %w", r.ID, err)
	}
	return r.table.GetRecord(ctx, echo.ID)
}

// UploadAttachment uploads a local file and appends it to an attachment
// field, returning the updated Record.
func (r *Record) UploadAttachment(ctx context.Context, field, path, mimetype string) (*Record, error) {
	value, err := r.Value(ctx, field)
	if err != nil {
		return nil, err
	}
	existing, _ := value.([]any)

	descriptors, err := r.table.noco.UploadFile(ctx, path, mimetype)
	if err != nil {
		return nil, err
	}
	for _, d := range descriptors {
		existing = append(existing, d)
	}
	return r.Update(ctx, map[string]any{field: existing})
}

// LinkRecord links another record to this one through a relation column.
func (r *Record) LinkRecord(ctx context.Context, column Column, other *Record) error {
	_, err := r.table.noco.Call(ctx, http.MethodPost, r.linkPath(column), nil, idEcho{ID: other.ID})
	return err
}

// LinkRecords links several records to this one through a relation column.
func (r *Record) LinkRecords(ctx context.Context, column Column, others []*Record) error {
	payload := make([]idEcho, 0, len(others))
	for _, o := range others {
		payload = append(payload, idEcho{ID: o.ID})
	}
	_, err := r.table.noco.Call(ctx, http.MethodPost, r.linkPath(column), nil, payload)
	return err
}

func (r *Record) linkPath(column Column) string {
	return fmt.Sprintf("tables/%s/links/%s/records/%d", r.table.ID, column.ID, r.ID)
}
