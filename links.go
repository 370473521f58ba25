package nocodb

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// The relation-read endpoint is not self-describing: the response shape
// differs between has-one, has-many and many-to-many relations and
// between service versions. Identifier extraction is therefore a priority
// list of shape matchers tried in order, and the whole resolution is a
// fallback chain ending in the record's own foreign-key attribute.

// linkShapeMatcher inspects a relation-read body and reports the id
// candidates it found. decisive means the shape matched structurally and
// its result is final, even when empty; later matchers are skipped.
type linkShapeMatcher func(body map[string]any) (ids []any, decisive bool)

var linkShapeMatchers = []linkShapeMatcher{
	matchListField,
	matchTopLevelID,
	matchFieldScan,
}

// matchListField handles the `"list": [...]` and `"list": {...}` shapes.
// An empty list is decisive: the relation exists and has no members. A
// non-empty list whose elements carry no Id is not; later matchers and
// the foreign-key fallback still get their turn.
func matchListField(body map[string]any) ([]any, bool) {
	value, ok := body["list"]
	if !ok {
		return nil, false
	}

	switch list := value.(type) {
	case []any:
		if len(list) == 0 {
			return nil, true
		}
		var ids []any
		for _, element := range list {
			if row, ok := element.(map[string]any); ok {
				if id, ok := row["Id"]; ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, len(ids) > 0
	case map[string]any:
		if len(list) == 0 {
			return nil, true
		}
		if id, ok := list["Id"]; ok {
			return []any{id}, true
		}
	case nil:
		return nil, true
	}
	return nil, false
}

// matchTopLevelID handles the bare `{"Id": n}` shape of has-one reads.
func matchTopLevelID(body map[string]any) ([]any, bool) {
	if id, ok := body["Id"]; ok {
		return []any{id}, true
	}
	return nil, false
}

// matchFieldScan is the last resort: collect Id from any top-level field
// holding an object or an array of objects.
func matchFieldScan(body map[string]any) ([]any, bool) {
	var ids []any
	for _, value := range body {
		switch v := value.(type) {
		case map[string]any:
			if id, ok := v["Id"]; ok {
				ids = append(ids, id)
			}
		case []any:
			for _, element := range v {
				if row, ok := element.(map[string]any); ok {
					if id, ok := row["Id"]; ok {
						ids = append(ids, id)
					}
				}
			}
		}
	}
	return ids, len(ids) > 0
}

// parseLinkResponse runs the shape matchers over a relation-read body.
// A malformed body is treated as "no identifiers found", never an error,
// so the caller's fallback chain can proceed.
func parseLinkResponse(raw json.RawMessage) (ids []any, decisive bool) {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}
	for _, match := range linkShapeMatchers {
		if ids, ok := match(body); ok {
			return ids, true
		}
	}
	return nil, false
}

// coerceID turns an id candidate into an integer. Null and unparseable
// candidates report false and are dropped by callers.
func coerceID(v any) (int, bool) {
	switch id := v.(type) {
	case float64:
		return int(id), true
	case int:
		return id, true
	case json.Number:
		n, err := id.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(id)
		return n, err == nil
	default:
		return 0, false
	}
}

// coerceIDs coerces candidates to a duplicate-free integer set, dropping
// anything null or unparseable.
func coerceIDs(candidates []any) []int {
	seen := map[int]bool{}
	ids := make([]int, 0, len(candidates))
	for _, c := range candidates {
		id, ok := coerceID(c)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// singularize strips a trailing pluralizing "s". Irregular plurals are
// not handled; the heuristic is deliberately this small and visible.
func singularize(title string) string {
	return strings.TrimSuffix(title, "s")
}

// GetLinkedRecords materializes the records linked to this one through a
// relation column, in server order. Resolution is a fallback chain:
//
//  1. read the dedicated link endpoint and extract ids from whichever of
//     the known response shapes matches;
//  2. failing that, use a "<column title>_id" foreign key already present
//     in this record's attribute bag;
//  3. if anything in the procedure fails, retry the foreign-key heuristic
//     against a table found by exact title in the base, and only then
//     surface the original error.
//
// The target table comes from the column's LinkedTableID when present
// (authoritative, never overridden by title matching), otherwise from an
// exact title match over the base's tables, retried with the pluralizing
// suffix stripped.
func (r *Record) GetLinkedRecords(ctx context.Context, column Column) ([]*Record, error) {
	records, err := r.resolveLinked(ctx, column)
	if err == nil {
		return records, nil
	}

	fk, ok := r.foreignKeyID(column)
	if !ok {
		return nil, err
	}

	base, baseErr := r.table.GetBase(ctx)
	if baseErr != nil {
		return nil, err
	}
	tables, tablesErr := base.GetTables(ctx)
	if tablesErr != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Title == column.Title {
			return t.GetRecordsByID(ctx, []int{fk})
		}
	}
	return nil, LinkedTableNotFoundError{Column: column.Title}
}

// resolveLinked is the primary path; any error out of here gates the
// narrow recovery in GetLinkedRecords.
func (r *Record) resolveLinked(ctx context.Context, column Column) ([]*Record, error) {
	raw, err := r.table.noco.Call(ctx, http.MethodGet, r.linkPath(column), nil, nil)
	if err != nil {
		return nil, err
	}

	candidates, decisive := parseLinkResponse(raw)
	if decisive && len(candidates) == 0 {
		return []*Record{}, nil
	}
	if len(candidates) == 0 {
		if fk, ok := r.foreignKeyID(column); ok {
			candidates = []any{fk}
		}
	}

	ids := coerceIDs(candidates)
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	linked, err := r.linkedTable(ctx, column)
	if err != nil {
		return nil, err
	}
	return linked.GetRecordsByID(ctx, ids)
}

// linkedTable resolves the target table of a relation column.
func (r *Record) linkedTable(ctx context.Context, column Column) (*Table, error) {
	if column.LinkedTableID != "" {
		return r.table.noco.GetTable(ctx, column.LinkedTableID)
	}

	base, err := r.table.GetBase(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := base.GetTables(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range tables {
		if t.Title == column.Title {
			return t, nil
		}
	}
	if singular := singularize(column.Title); singular != column.Title {
		for _, t := range tables {
			if t.Title == singular {
				return t, nil
			}
		}
	}
	return nil, LinkedTableUndeterminedError{Column: column.Title}
}

// foreignKeyID looks for a "<column title>_id" attribute already present
// in the record's local bag. Some relation shapes embed the foreign key
// directly instead of exposing it through the link endpoint.
func (r *Record) foreignKeyID(column Column) (int, bool) {
	value, ok := r.Attributes[column.Title+"_id"]
	if !ok || value == nil {
		return 0, false
	}
	id, ok := coerceID(value)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}
