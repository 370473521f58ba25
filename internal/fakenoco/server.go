// Package fakenoco provides an in-memory fake of the NocoDB v2 REST API
// for tests. It serves the meta endpoints, paged record listings, bulk
// mutations and relation reads, and records every request it handles so
// tests can assert on call counts and pagination behavior.
//
// Relation-read responses can be overridden per column with SetLinkBody
// to exercise the client's multi-shape parsing, and arbitrary failures
// can be injected per path with FailWith.
package fakenoco

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const apiPrefix = "/api/v2/"

// Base is one stored base.
type Base struct {
	ID    string
	Title string
}

// Column is one stored column descriptor.
type Column struct {
	ID            string
	Title         string
	Name          string
	System        bool
	Uidt          string
	LinkedTableID string
}

// Table is one stored table with its rows in insertion order.
type Table struct {
	ID      string
	BaseID  string
	Title   string
	Columns []Column

	rows     map[int]map[string]any
	rowOrder []int
}

// Server is the fake deployment. It implements http.Handler; wrap it in
// an httptest.Server to point a client at it.
type Server struct {
	mu sync.Mutex

	bases  map[string]*Base
	tables map[string]*Table
	links  map[string][]int // "<tableID>/<columnID>/<recordID>" -> linked ids

	linkBodies map[string]any    // columnID -> canned relation-read body
	failures   map[string]int    // "<METHOD> <path-suffix>" -> status to return
	requests   []string          // "<METHOD> <path>?<query>"

	nextBase   int
	nextTable  int
	nextColumn int
	nextRecord int
}

// NewServer returns an empty fake deployment.
func NewServer() *Server {
	return &Server{
		bases:      map[string]*Base{},
		tables:     map[string]*Table{},
		links:      map[string][]int{},
		linkBodies: map[string]any{},
		failures:   map[string]int{},
	}
}

// AddBase seeds a base and returns its id.
func (s *Server) AddBase(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addBaseLocked(title)
}

func (s *Server) addBaseLocked(title string) string {
	s.nextBase++
	id := fmt.Sprintf("b%04d", s.nextBase)
	s.bases[id] = &Base{ID: id, Title: title}
	return id
}

// AddTable seeds a table with the default column set and returns its id.
func (s *Server) AddTable(baseID, title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTableLocked(baseID, title)
}

func (s *Server) addTableLocked(baseID, title string) string {
	s.nextTable++
	id := fmt.Sprintf("t%04d", s.nextTable)
	t := &Table{ID: id, BaseID: baseID, Title: title, rows: map[int]map[string]any{}}
	t.Columns = []Column{
		s.newColumnLocked("Id", "id", true, "ID", ""),
		s.newColumnLocked("CreatedAt", "created_at", true, "DateTime", ""),
		s.newColumnLocked("UpdatedAt", "updated_at", true, "DateTime", ""),
		s.newColumnLocked("Title", "title", false, "SingleLineText", ""),
	}
	s.tables[id] = t
	return id
}

func (s *Server) newColumnLocked(title, name string, system bool, uidt, linkedTableID string) Column {
	s.nextColumn++
	return Column{
		ID:            fmt.Sprintf("c%04d", s.nextColumn),
		Title:         title,
		Name:          name,
		System:        system,
		Uidt:          uidt,
		LinkedTableID: linkedTableID,
	}
}

// AddColumn seeds a column on a table and returns its id.
func (s *Server) AddColumn(tableID, title string, system bool, uidt, linkedTableID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.newColumnLocked(title, strings.ToLower(title), system, uidt, linkedTableID)
	t := s.tables[tableID]
	t.Columns = append(t.Columns, col)
	return col.ID
}

// AddRow seeds a row, assigning and returning its Id.
func (s *Server) AddRow(tableID string, fields map[string]any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addRowLocked(s.tables[tableID], fields)
}

func (s *Server) addRowLocked(t *Table, fields map[string]any) int {
	s.nextRecord++
	id := s.nextRecord
	row := map[string]any{"Id": id}
	for k, v := range fields {
		row[k] = v
	}
	t.rows[id] = row
	t.rowOrder = append(t.rowOrder, id)
	return id
}

// SetLink seeds the linked ids served by a relation read.
func (s *Server) SetLink(tableID, columnID string, recordID int, linked []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[linkKey(tableID, columnID, recordID)] = linked
}

// SetLinkBody overrides the relation-read response body for a column,
// regardless of record. Use it to serve the odd response shapes the real
// service produces.
func (s *Server) SetLinkBody(columnID string, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkBodies[columnID] = body
}

// FailWith makes requests whose "<METHOD> <path>" contains match fail
// with the given status.
func (s *Server) FailWith(match string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[match] = status
}

// Requests returns every request handled so far as "METHOD path?query".
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests counts handled requests containing match.
func (s *Server) CountRequests(match string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if strings.Contains(r, match) {
			n++
		}
	}
	return n
}

func linkKey(tableID, columnID string, recordID int) string {
	return tableID + "/" + columnID + "/" + strconv.Itoa(recordID)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logged := r.Method + " " + r.URL.Path
	if r.URL.RawQuery != "" {
		logged += "?" + r.URL.RawQuery
	}
	s.requests = append(s.requests, logged)

	for match, status := range s.failures {
		if strings.Contains(r.Method+" "+r.URL.Path, match) {
			writeError(w, status, "injected failure")
			return
		}
	}

	// Attachment downloads use signed URLs outside the API prefix.
	if strings.HasPrefix(r.URL.Path, "/files/") {
		_, _ = w.Write([]byte("file:" + strings.TrimPrefix(r.URL.Path, "/files/")))
		return
	}

	if !strings.HasPrefix(r.URL.Path, apiPrefix) {
		writeError(w, http.StatusNotFound, "unknown prefix")
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, apiPrefix), "/"), "/")

	switch {
	case parts[0] == "meta":
		s.serveMeta(w, r, parts[1:])
	case parts[0] == "tables":
		s.serveData(w, r, parts[1:])
	case len(parts) == 2 && parts[0] == "storage" && parts[1] == "upload" && r.Method == http.MethodPost:
		s.nextRecord++
		writeJSON(w, []map[string]any{
			{"signedUrl": fmt.Sprintf("/files/upload-%d", s.nextRecord), "mimetype": r.Header.Get("Content-Type")},
		})
	default:
		writeError(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *Server) serveMeta(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 1 && parts[0] == "bases":
		switch r.Method {
		case http.MethodGet:
			list := []map[string]any{}
			ids := make([]string, 0, len(s.bases))
			for id := range s.bases {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				list = append(list, s.baseMeta(s.bases[id]))
			}
			writeJSON(w, listBody(list, true))
		case http.MethodPost:
			var body map[string]any
			readJSON(r, &body)
			id := s.addBaseLocked(str(body["title"]))
			writeJSON(w, s.baseMeta(s.bases[id]))
		default:
			writeError(w, http.StatusMethodNotAllowed, "bad method")
		}

	case len(parts) >= 2 && parts[0] == "bases":
		base, ok := s.bases[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "base not found")
			return
		}
		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			writeJSON(w, s.baseMeta(base))
		case len(parts) == 2 && r.Method == http.MethodDelete:
			delete(s.bases, base.ID)
			writeJSON(w, map[string]any{"msg": "deleted"})
		case len(parts) == 3 && parts[2] == "info":
			writeJSON(w, map[string]any{
				"Node": "v20", "Arch": "x64", "Platform": "linux",
				"Docker": true, "RootDB": "pg", "PackageVersion": "0.255.2",
			})
		case len(parts) == 3 && parts[2] == "tables" && r.Method == http.MethodGet:
			list := []map[string]any{}
			ids := make([]string, 0, len(s.tables))
			for id := range s.tables {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				if s.tables[id].BaseID == base.ID {
					list = append(list, s.tableMeta(s.tables[id], false))
				}
			}
			writeJSON(w, listBody(list, true))
		case len(parts) == 3 && parts[2] == "tables" && r.Method == http.MethodPost:
			var body map[string]any
			readJSON(r, &body)
			id := s.addTableLocked(base.ID, str(body["title"]))
			writeJSON(w, s.tableMeta(s.tables[id], true))
		default:
			writeError(w, http.StatusNotFound, "unknown base resource")
		}

	case parts[0] == "tables" && len(parts) >= 2:
		table, ok := s.tables[parts[1]]
		if !ok {
			writeError(w, http.StatusNotFound, "table not found")
			return
		}
		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			writeJSON(w, s.tableMeta(table, true))
		case len(parts) == 2 && r.Method == http.MethodDelete:
			delete(s.tables, table.ID)
			writeJSON(w, true)
		case len(parts) == 3 && parts[2] == "columns" && r.Method == http.MethodPost:
			var body map[string]any
			readJSON(r, &body)
			linked := ""
			if child, ok := body["childId"].(string); ok {
				linked = child
			}
			col := s.newColumnLocked(str(body["title"]), str(body["column_name"]), false, str(body["uidt"]), linked)
			table.Columns = append(table.Columns, col)
			writeJSON(w, s.columnMeta(col))
		case len(parts) == 4 && parts[2] == "columns" && parts[3] == "hash":
			h := sha1.Sum([]byte(fmt.Sprintf("%v", table.Columns)))
			writeJSON(w, map[string]any{"hash": hex.EncodeToString(h[:])})
		default:
			writeError(w, http.StatusNotFound, "unknown table resource")
		}

	case parts[0] == "duplicate" && len(parts) == 4 && parts[2] == "table":
		src, ok := s.tables[parts[3]]
		if !ok {
			writeError(w, http.StatusNotFound, "table not found")
			return
		}
		title := src.Title + " copy"
		for n := 1; s.titleTakenLocked(src.BaseID, title); n++ {
			title = fmt.Sprintf("%s copy_%d", src.Title, n)
		}
		id := s.addTableLocked(src.BaseID, title)
		writeJSON(w, map[string]any{"id": id})

	default:
		writeError(w, http.StatusNotFound, "unknown meta resource")
	}
}

func (s *Server) titleTakenLocked(baseID, title string) bool {
	for _, t := range s.tables {
		if t.BaseID == baseID && t.Title == title {
			return true
		}
	}
	return false
}

func (s *Server) serveData(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) < 2 {
		writeError(w, http.StatusNotFound, "unknown data resource")
		return
	}
	table, ok := s.tables[parts[0]]
	if !ok {
		writeError(w, http.StatusNotFound, "table not found")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "records":
		s.serveRecords(w, r, table)
	case len(parts) == 3 && parts[1] == "records" && parts[2] == "count":
		writeJSON(w, map[string]any{"count": len(table.rowOrder)})
	case len(parts) == 3 && parts[1] == "records":
		id, _ := strconv.Atoi(parts[2])
		row, ok := table.rows[id]
		if !ok {
			writeError(w, http.StatusNotFound, "record not found")
			return
		}
		writeJSON(w, projectFields(row, r.URL.Query().Get("fields")))
	case len(parts) == 5 && parts[1] == "links" && parts[3] == "records":
		recordID, _ := strconv.Atoi(parts[4])
		s.serveLinks(w, r, table, parts[2], recordID)
	default:
		writeError(w, http.StatusNotFound, "unknown data resource")
	}
}

func (s *Server) serveRecords(w http.ResponseWriter, r *http.Request, table *Table) {
	switch r.Method {
	case http.MethodGet:
		rows := s.filterRows(table, r.URL.Query().Get("where"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = 25
		}

		page := []map[string]any{}
		for i := offset; i < len(rows) && i < offset+limit; i++ {
			page = append(page, rows[i])
		}
		writeJSON(w, listBody(page, offset+limit >= len(rows)))

	case http.MethodPost:
		raw, _ := io.ReadAll(r.Body)
		var bulk []map[string]any
		if err := json.Unmarshal(raw, &bulk); err == nil {
			echoes := []map[string]any{}
			for _, fields := range bulk {
				echoes = append(echoes, map[string]any{"Id": s.addRowLocked(table, fields)})
			}
			writeJSON(w, echoes)
			return
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			writeError(w, http.StatusBadRequest, "bad body")
			return
		}
		writeJSON(w, map[string]any{"Id": s.addRowLocked(table, fields)})

	case http.MethodPatch:
		raw, _ := io.ReadAll(r.Body)
		var bulk []map[string]any
		if err := json.Unmarshal(raw, &bulk); err == nil {
			echoes := []map[string]any{}
			for _, fields := range bulk {
				echoes = append(echoes, map[string]any{"Id": s.patchRowLocked(table, fields)})
			}
			writeJSON(w, echoes)
			return
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			writeError(w, http.StatusBadRequest, "bad body")
			return
		}
		writeJSON(w, map[string]any{"Id": s.patchRowLocked(table, fields)})

	case http.MethodDelete:
		raw, _ := io.ReadAll(r.Body)
		var bulk []map[string]any
		if err := json.Unmarshal(raw, &bulk); err == nil {
			echoes := []map[string]any{}
			for _, fields := range bulk {
				id := toInt(fields["Id"])
				s.deleteRowLocked(table, id)
				echoes = append(echoes, map[string]any{"Id": id})
			}
			writeJSON(w, echoes)
			return
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			writeError(w, http.StatusBadRequest, "bad body")
			return
		}
		id := toInt(fields["Id"])
		s.deleteRowLocked(table, id)
		writeJSON(w, map[string]any{"Id": id})

	default:
		writeError(w, http.StatusMethodNotAllowed, "bad method")
	}
}

func (s *Server) patchRowLocked(table *Table, fields map[string]any) int {
	id := toInt(fields["Id"])
	row, ok := table.rows[id]
	if !ok {
		return id
	}
	for k, v := range fields {
		if k != "Id" {
			row[k] = v
		}
	}
	return id
}

func (s *Server) deleteRowLocked(table *Table, id int) {
	delete(table.rows, id)
	for i, rid := range table.rowOrder {
		if rid == id {
			table.rowOrder = append(table.rowOrder[:i], table.rowOrder[i+1:]...)
			break
		}
	}
}

func (s *Server) serveLinks(w http.ResponseWriter, r *http.Request, table *Table, columnID string, recordID int) {
	key := linkKey(table.ID, columnID, recordID)

	switch r.Method {
	case http.MethodGet:
		if body, ok := s.linkBodies[columnID]; ok {
			writeJSON(w, body)
			return
		}
		list := []map[string]any{}
		for _, id := range s.links[key] {
			list = append(list, map[string]any{"Id": id})
		}
		writeJSON(w, listBody(list, true))

	case http.MethodPost:
		raw, _ := io.ReadAll(r.Body)
		var bulk []map[string]any
		if err := json.Unmarshal(raw, &bulk); err == nil {
			for _, e := range bulk {
				s.links[key] = append(s.links[key], toInt(e["Id"]))
			}
			writeJSON(w, true)
			return
		}
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			writeError(w, http.StatusBadRequest, "bad body")
			return
		}
		s.links[key] = append(s.links[key], toInt(single["Id"]))
		writeJSON(w, true)

	default:
		writeError(w, http.StatusMethodNotAllowed, "bad method")
	}
}

// filterRows applies the where expressions the client generates:
// (Id,in,1,2,3) and (field,eq,value).
func (s *Server) filterRows(table *Table, where string) []map[string]any {
	rows := []map[string]any{}
	var keep func(row map[string]any) bool = func(map[string]any) bool { return true }

	if where != "" {
		inner := strings.TrimSuffix(strings.TrimPrefix(where, "("), ")")
		args := strings.Split(inner, ",")
		if len(args) >= 3 {
			field, op := args[0], args[1]
			switch op {
			case "in":
				wanted := map[int]bool{}
				for _, a := range args[2:] {
					if n, err := strconv.Atoi(a); err == nil {
						wanted[n] = true
					}
				}
				keep = func(row map[string]any) bool { return wanted[toInt(row[field])] }
			case "eq":
				value := strings.Join(args[2:], ",")
				keep = func(row map[string]any) bool { return fmt.Sprintf("%v", row[field]) == value }
			}
		}
	}

	for _, id := range table.rowOrder {
		if keep(table.rows[id]) {
			rows = append(rows, table.rows[id])
		}
	}
	return rows
}

func (s *Server) baseMeta(b *Base) map[string]any {
	return map[string]any{"id": b.ID, "title": b.Title}
}

func (s *Server) tableMeta(t *Table, withColumns bool) map[string]any {
	meta := map[string]any{
		"id":      t.ID,
		"base_id": t.BaseID,
		"title":   t.Title,
	}
	if withColumns {
		cols := []map[string]any{}
		for _, c := range t.Columns {
			cols = append(cols, s.columnMeta(c))
		}
		meta["columns"] = cols
		meta["views"] = []any{}
		meta["columnsById"] = map[string]any{}
	}
	return meta
}

func (s *Server) columnMeta(c Column) map[string]any {
	meta := map[string]any{
		"id":          c.ID,
		"title":       c.Title,
		"column_name": c.Name,
		"system":      c.System,
		"uidt":        c.Uidt,
	}
	if c.LinkedTableID != "" {
		meta["colOptions"] = map[string]any{"fk_related_model_id": c.LinkedTableID}
	}
	return meta
}

func listBody(list []map[string]any, isLast bool) map[string]any {
	return map[string]any{
		"list":     list,
		"pageInfo": map[string]any{"isLastPage": isLast},
	}
}

func projectFields(row map[string]any, fields string) map[string]any {
	if fields == "" {
		return row
	}
	wanted := map[string]bool{}
	for _, f := range strings.Split(fields, ",") {
		wanted[f] = true
	}
	projected := map[string]any{}
	for k, v := range row {
		if wanted[k] {
			projected[k] = v
		}
	}
	return projected
}

func readJSON(r *http.Request, target any) {
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, target)
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"msg": msg})
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
