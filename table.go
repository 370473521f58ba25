package nocodb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
)

// Where builds a filter expression from a field, operator and value, e.g.
// Where("Age", "gt", 42) -> "(Age,gt,42)".
func Where(field, op string, value any) string {
	return fmt.Sprintf("(%s,%s,%v)", field, op, value)
}

// Table is a factory and repository for the Records and Columns of one
// remote table. Tables own no Records; those are transient views over
// server rows.
type Table struct {
	noco *NocoDB

	ID     string
	BaseID string
	Title  string

	// Metadata is the raw table object as returned by the server.
	Metadata map[string]any
}

func newTable(noco *NocoDB, meta map[string]any) *Table {
	return &Table{
		noco:     noco,
		ID:       stringField(meta, "id"),
		BaseID:   stringField(meta, "base_id"),
		Title:    stringField(meta, "title"),
		Metadata: meta,
	}
}

// BasicMetadata returns the table metadata without the bulky column and
// view listings.
func (t *Table) BasicMetadata() map[string]any {
	extra := map[string]bool{"columns": true, "views": true, "columnsById": true}
	m := make(map[string]any, len(t.Metadata))
	for k, v := range t.Metadata {
		if !extra[k] {
			m[k] = v
		}
	}
	return m
}

// GetBase fetches the base owning this table.
func (t *Table) GetBase(ctx context.Context) (*Base, error) {
	return t.noco.GetBase(ctx, t.BaseID)
}

// NumberOfRecords returns the server-side row count.
func (t *Table) NumberOfRecords(ctx context.Context) (int, error) {
	raw, err := t.noco.Call(ctx, http.MethodGet, "tables/"+t.ID+"/records/count", nil, nil)
	if err != nil {
		return 0, err
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, fmt.Errorf("failed to decode record count for table %s: %w", t.ID, err)
	}
	return body.Count, nil
}

// Duplicate asks the server to copy this table. The copy is named
// "<title> copy" (or "<title> copy_<n>" for repeated copies); use
// GetDuplicates to locate it, the duplication response itself carries an
// unusable id.
func (t *Table) Duplicate(ctx context.Context, excludeData, excludeViews bool) error {
	_, err := t.noco.Call(ctx, http.MethodPost, "meta/duplicate/"+t.BaseID+"/table/"+t.ID, nil, map[string]any{
		"excludeData":  excludeData,
		"excludeViews": excludeViews,
	})
	if err != nil {
		return err
	}
	t.noco.logger.Info().Str("table", t.Title).Msg("table duplicated")
	return nil
}

// GetDuplicates lists the copies of this table, newest suffix first. A
// bare "<title> copy" sorts as suffix 0.
func (t *Table) GetDuplicates(ctx context.Context) ([]*Table, error) {
	base, err := t.GetBase(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := base.GetTables(ctx)
	if err != nil {
		return nil, err
	}

	pattern, err := regexp.Compile("^" + regexp.QuoteMeta(t.Title) + ` copy(_\d+)?$`)
	if err != nil {
		return nil, err
	}

	duplicates := map[int]*Table{}
	for _, table := range tables {
		m := pattern.FindStringSubmatch(table.Title)
		if m == nil {
			continue
		}
		n := 0
		if m[1] != "" {
			n, _ = strconv.Atoi(m[1][1:])
		}
		duplicates[n] = table
	}

	suffixes := make([]int, 0, len(duplicates))
	for n := range duplicates {
		suffixes = append(suffixes, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(suffixes)))

	ordered := make([]*Table, 0, len(suffixes))
	for _, n := range suffixes {
		ordered = append(ordered, duplicates[n])
	}
	return ordered, nil
}

// Delete removes the table.
func (t *Table) Delete(ctx context.Context) error {
	_, err := t.noco.Call(ctx, http.MethodDelete, "meta/tables/"+t.ID, nil, nil)
	if err != nil {
		return err
	}
	t.noco.logger.Info().Str("table", t.Title).Msg("table deleted")
	return nil
}

// GetColumns fetches the table's columns. Every call re-queries the
// server; columns are never cached. System columns are filtered out
// unless includeSystem is set.
func (t *Table) GetColumns(ctx context.Context, includeSystem bool) ([]Column, error) {
	raw, err := t.noco.Call(ctx, http.MethodGet, "meta/tables/"+t.ID, nil, nil)
	if err != nil {
		return nil, err
	}

	var meta struct {
		Columns []map[string]any `json:"columns"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode columns for table %s: %w", t.ID, err)
	}

	cols := make([]Column, 0, len(meta.Columns))
	for _, cm := range meta.Columns {
		col := newColumn(cm)
		if col.System && !includeSystem {
			continue
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// ColumnsHash returns the server's hash over the table's column set.
func (t *Table) ColumnsHash(ctx context.Context) (string, error) {
	raw, err := t.noco.Call(ctx, http.MethodGet, "meta/tables/"+t.ID+"/columns/hash", nil, nil)
	if err != nil {
		return "", err
	}

	var body struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("failed to decode columns hash for table %s: %w", t.ID, err)
	}
	return body.Hash, nil
}

// GetColumnByTitle finds a non-system column by exact title.
func (t *Table) GetColumnByTitle(ctx context.Context, title string) (Column, error) {
	cols, err := t.GetColumns(ctx, false)
	if err != nil {
		return Column{}, err
	}
	for _, c := range cols {
		if c.Title == title {
			return c, nil
		}
	}
	return Column{}, ColumnNotFoundError{Table: t.Title, Title: title}
}

// CreateColumn creates a column and returns it freshly re-queried from
// the server. extra carries any additional column options to pass through.
func (t *Table) CreateColumn(ctx context.Context, columnName, title string, dataType DataType, extra map[string]any) (Column, error) {
	payload := map[string]any{}
	for k, v := range extra {
		payload[k] = v
	}
	payload["column_name"] = columnName
	payload["title"] = title
	payload["uidt"] = string(dataType)

	if _, err := t.noco.Call(ctx, http.MethodPost, "meta/tables/"+t.ID+"/columns", nil, payload); err != nil {
		return Column{}, err
	}
	return t.GetColumnByTitle(ctx, title)
}

// CreateLinkedColumn creates a relation column pointing at target. It is
// idempotent by title: an existing column of that title is returned
// unchanged without issuing a creation request. When the freshly created
// column is not yet visible after creation the method returns (nil, nil)
// rather than retrying; the meta API is eventually consistent.
func (t *Table) CreateLinkedColumn(ctx context.Context, title string, target *Table, linkType LinkType) (*Column, error) {
	existing, err := t.GetColumns(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.Title == title {
			col := c
			return &col, nil
		}
	}

	// The relation is built on both tables' Id columns; they must exist.
	if err := t.checkIDColumn(ctx, target); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"title":    title,
		"uidt":     string(TypeLinks),
		"parentId": t.ID,
		"childId":  target.ID,
		"type":     string(linkType),
	}
	if _, err := t.noco.Call(ctx, http.MethodPost, "meta/tables/"+t.ID+"/columns", nil, payload); err != nil {
		return nil, err
	}
	t.noco.logger.Info().Str("table", t.Title).Str("column", title).Str("target", target.Title).Msg("linked column created")

	cols, err := t.GetColumns(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		if c.Title == title {
			col := c
			return &col, nil
		}
	}
	return nil, nil
}

func (t *Table) checkIDColumn(ctx context.Context, target *Table) error {
	hasID := func(cols []Column) bool {
		for _, c := range cols {
			if c.Title == "Id" {
				return true
			}
		}
		return false
	}

	selfCols, err := t.GetColumns(ctx, true)
	if err != nil {
		return err
	}
	targetCols, err := target.GetColumns(ctx, true)
	if err != nil {
		return err
	}
	if !hasID(selfCols) || !hasID(targetCols) {
		return MissingIDColumnsError{Table: t.Title, Target: target.Title}
	}
	return nil
}

// GetRecords fetches rows by paged scan. With no offset or limit in
// params the scan runs to the server's last-page marker; supplying either
// fetches exactly one page. A "where" param filters server-side, see Where.
func (t *Table) GetRecords(ctx context.Context, params url.Values) ([]*Record, error) {
	rows, err := newPager(t.noco, "tables/"+t.ID+"/records", params).All(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, newRecord(t, row))
	}
	return records, nil
}

// GetRecord fetches one row by id.
func (t *Table) GetRecord(ctx context.Context, recordID int) (*Record, error) {
	raw, err := t.noco.Call(ctx, http.MethodGet, t.recordPath(recordID), nil, nil)
	if err != nil {
		return nil, err
	}

	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("failed to decode record %d of table %s: %w", recordID, t.ID, err)
	}
	return newRecord(t, row), nil
}

// GetRecordsByID resolves a set of row ids into Records with one bulk
// filter query. See batchResolver for the contract.
func (t *Table) GetRecordsByID(ctx context.Context, recordIDs []int) ([]*Record, error) {
	return batchResolver{table: t}.Resolve(ctx, recordIDs)
}

// GetRecordsByFieldValue fetches all rows whose field equals value.
func (t *Table) GetRecordsByFieldValue(ctx context.Context, field string, value any) ([]*Record, error) {
	params := url.Values{}
	params.Set("where", Where(field, "eq", value))
	return t.GetRecords(ctx, params)
}

// CreateRecord creates one row and returns it fetched fresh from the
// server, fully populated.
func (t *Table) CreateRecord(ctx context.Context, fields map[string]any) (*Record, error) {
	raw, err := t.noco.Call(ctx, http.MethodPost, "tables/"+t.ID+"/records", nil, fields)
	if err != nil {
		return nil, err
	}

	var echo idEcho
	if err := json.Unmarshal(raw, &echo); err != nil {
		return nil, fmt.Errorf("failed to decode create response for table %s: %w", t.ID, err)
	}
	return t.GetRecord(ctx, echo.ID)
}

// CreateRecords creates rows in one bulk request and resolves the echoed
// ids into fully populated Records. Order follows the server's listing,
// not the input.
func (t *Table) CreateRecords(ctx context.Context, records []map[string]any) ([]*Record, error) {
	raw, err := t.noco.Call(ctx, http.MethodPost, "tables/"+t.ID+"/records", nil, records)
	if err != nil {
		return nil, err
	}

	ids, err := echoedIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode create response for table %s: %w", t.ID, err)
	}
	return t.GetRecordsByID(ctx, ids)
}

// UpdateRecords patches rows in one bulk request; each element must carry
// an "Id" field. Like CreateRecords the result is re-fetched, not echoed.
func (t *Table) UpdateRecords(ctx context.Context, records []map[string]any) ([]*Record, error) {
	raw, err := t.noco.Call(ctx, http.MethodPatch, "tables/"+t.ID+"/records", nil, records)
	if err != nil {
		return nil, err
	}

	ids, err := echoedIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode update response for table %s: %w", t.ID, err)
	}
	return t.GetRecordsByID(ctx, ids)
}

// DeleteRecord deletes one row and returns its id.
func (t *Table) DeleteRecord(ctx context.Context, recordID int) (int, error) {
	raw, err := t.noco.Call(ctx, http.MethodDelete, "tables/"+t.ID+"/records", nil, idEcho{ID: recordID})
	if err != nil {
		return 0, err
	}

	var echo idEcho
	if err := json.Unmarshal(raw, &echo); err != nil {
		return 0, fmt.Errorf("failed to decode delete response for table %s: %w", t.ID, err)
	}
	return echo.ID, nil
}

// DeleteRecordsByID deletes rows in one bulk request and returns the
// deleted ids. Deletion returns identifiers only, there is nothing left
// to resolve.
func (t *Table) DeleteRecordsByID(ctx context.Context, recordIDs []int) ([]int, error) {
	payload := make([]idEcho, 0, len(recordIDs))
	for _, id := range recordIDs {
		payload = append(payload, idEcho{ID: id})
	}

	raw, err := t.noco.Call(ctx, http.MethodDelete, "tables/"+t.ID+"/records", nil, payload)
	if err != nil {
		return nil, err
	}

	ids, err := echoedIDs(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode delete response for table %s: %w", t.ID, err)
	}
	return ids, nil
}

// DeleteRecords deletes the given records.
func (t *Table) DeleteRecords(ctx context.Context, records []*Record) ([]int, error) {
	ids := make([]int, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return t.DeleteRecordsByID(ctx, ids)
}

func (t *Table) recordPath(recordID int) string {
	return "tables/" + t.ID + "/records/" + strconv.Itoa(recordID)
}

// idEcho is the `{"Id": n}` object mutation endpoints accept and return.
type idEcho struct {
	ID int `json:"Id"`
}

// echoedIDs decodes a bulk mutation response, an array of {Id} echoes.
func echoedIDs(raw json.RawMessage) ([]int, error) {
	var echoes []idEcho
	if err := json.Unmarshal(raw, &echoes); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(echoes))
	for _, e := range echoes {
		ids = append(ids, e.ID)
	}
	return ids, nil
}
