package nocodb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocodb/nocodb.go/internal/fakenoco"
	"github.com/nocodb/nocodb.go/pkg/transport"
)

func TestParseLinkResponseShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     []int
		decisive bool
	}{
		{
			name:     "list of rows",
			body:     `{"list": [{"Id": 3}, {"Id": 5}]}`,
			want:     []int{3, 5},
			decisive: true,
		},
		{
			name:     "list skips rows without Id",
			body:     `{"list": [{"Id": 3}, {"Name": "x"}]}`,
			want:     []int{3},
			decisive: true,
		},
		{
			name:     "empty list is decisive",
			body:     `{"list": []}`,
			want:     nil,
			decisive: true,
		},
		{
			name:     "non-empty list without ids falls through",
			body:     `{"list": [{"Name": "x"}, {"Name": "y"}]}`,
			want:     nil,
			decisive: false,
		},
		{
			name:     "null list is decisive",
			body:     `{"list": null}`,
			want:     nil,
			decisive: true,
		},
		{
			name:     "list holding a single row object",
			body:     `{"list": {"Id": 4}}`,
			want:     []int{4},
			decisive: true,
		},
		{
			name:     "top-level Id",
			body:     `{"Id": 7}`,
			want:     []int{7},
			decisive: true,
		},
		{
			name:     "object-valued field scan",
			body:     `{"customer": {"Id": 11, "Name": "x"}}`,
			want:     []int{11},
			decisive: true,
		},
		{
			name:     "array-valued field scan",
			body:     `{"rows": [{"Id": 1}, {"Id": 2}], "noise": "ok"}`,
			want:     []int{1, 2},
			decisive: true,
		},
		{
			name:     "nothing usable",
			body:     `{"noise": "ok", "count": 3}`,
			want:     nil,
			decisive: false,
		},
		{
			name:     "malformed body treated as no identifiers",
			body:     `"not an object"`,
			want:     nil,
			decisive: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates, decisive := parseLinkResponse(json.RawMessage(tt.body))
			assert.Equal(t, tt.decisive, decisive)
			assert.ElementsMatch(t, tt.want, coerceIDs(candidates))
		})
	}
}

func TestCoerceIDs(t *testing.T) {
	ids := coerceIDs([]any{float64(3), "5", nil, "junk", float64(3), 9})
	assert.Equal(t, []int{3, 5, 9}, ids, "nulls and unparseables dropped, duplicates collapsed")
}

func TestSingularize(t *testing.T) {
	assert.Equal(t, "Customer", singularize("Customers"))
	assert.Equal(t, "Order", singularize("Order"))
	// Irregular plurals are knowingly not handled.
	assert.Equal(t, "Personne", singularize("Personnes"))
}

// linkedFixture wires an Orders table with a relation column pointing at a
// second table, one order row and one row in the target.
type linkedFixture struct {
	table    *Table
	record   *Record
	column   Column
	targetID string
	linkedID int
}

func newLinkedFixture(t *testing.T, noco *NocoDB, fake *fakenoco.Server, columnTitle, targetTitle string, authoritative bool) linkedFixture {
	t.Helper()
	ctx := context.Background()

	baseID := fake.AddBase("UnitTest")
	ordersID := fake.AddTable(baseID, "Orders")
	targetID := fake.AddTable(baseID, targetTitle)

	linkedTableID := ""
	if authoritative {
		linkedTableID = targetID
	}
	columnID := fake.AddColumn(ordersID, columnTitle, false, "Links", linkedTableID)

	orderID := fake.AddRow(ordersID, map[string]any{"Title": "order 1"})
	linkedID := fake.AddRow(targetID, map[string]any{"Title": "linked row"})
	fake.SetLink(ordersID, columnID, orderID, []int{linkedID})

	table, err := noco.GetTable(ctx, ordersID)
	require.NoError(t, err)
	record, err := table.GetRecord(ctx, orderID)
	require.NoError(t, err)
	column, err := table.GetColumnByTitle(ctx, columnTitle)
	require.NoError(t, err)

	return linkedFixture{table: table, record: record, column: column, targetID: targetID, linkedID: linkedID}
}

func TestGetLinkedRecordsAuthoritativeTableID(t *testing.T) {
	noco, fake := newTestClient(t)
	// A decoy table shares the column's title; the authoritative id must
	// win over the title heuristic.
	fx := newLinkedFixture(t, noco, fake, "Partners", "Suppliers", true)
	fake.AddTable(fx.table.BaseID, "Partners")

	records, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fx.linkedID, records[0].ID)
	assert.Equal(t, fx.targetID, records[0].Table().ID)
	assert.Equal(t, 1, fake.CountRequests("GET /api/v2/tables/"+fx.targetID+"/records"))
}

func TestGetLinkedRecordsTitleMatch(t *testing.T) {
	noco, fake := newTestClient(t)
	// No authoritative id: the column title names the target table.
	fx := newLinkedFixture(t, noco, fake, "Suppliers", "Suppliers", false)

	records, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fx.linkedID, records[0].ID)
}

func TestGetLinkedRecordsPluralizedTitleMatch(t *testing.T) {
	noco, fake := newTestClient(t)
	// Column "Customers", table "Customer": resolved after stripping the
	// pluralizing suffix.
	fx := newLinkedFixture(t, noco, fake, "Customers", "Customer", false)

	records, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fx.linkedID, records[0].ID)
}

func TestGetLinkedRecordsUndeterminedTable(t *testing.T) {
	noco, fake := newTestClient(t)
	fx := newLinkedFixture(t, noco, fake, "Shipments", "Warehouse", false)

	_, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	var undetermined LinkedTableUndeterminedError
	require.True(t, errors.As(err, &undetermined), "got %v", err)
	assert.Equal(t, "Shipments", undetermined.Column)
}

func TestGetLinkedRecordsEmptyLink(t *testing.T) {
	noco, fake := newTestClient(t)
	fx := newLinkedFixture(t, noco, fake, "Suppliers", "Suppliers", true)
	fake.SetLink(fx.table.ID, fx.column.ID, fx.record.ID, nil)

	records, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetLinkedRecordsForeignKeyFallback(t *testing.T) {
	noco, fake := newTestClient(t)
	fx := newLinkedFixture(t, noco, fake, "Suppliers", "Suppliers", true)

	// The link endpoint yields nothing usable, but the record carries the
	// foreign key directly.
	fake.SetLinkBody(fx.column.ID, map[string]any{"noise": "ok"})
	fx.record.Attributes["Suppliers_id"] = float64(fx.linkedID)

	records, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fx.linkedID, records[0].ID)
}

func TestGetLinkedRecordsIdlessListFallsBackToForeignKey(t *testing.T) {
	noco, fake := newTestClient(t)
	fx := newLinkedFixture(t, noco, fake, "Suppliers", "Suppliers", true)

	// The list shape matched but carried no identifiers; that must not
	// count as an empty relation while a foreign key is at hand.
	fake.SetLinkBody(fx.column.ID, map[string]any{"list": []map[string]any{{"Name": "no id here"}}})
	fx.record.Attributes["Suppliers_id"] = float64(fx.linkedID)

	records, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fx.linkedID, records[0].ID)
}

func TestGetLinkedRecordsRecoversFromTransportError(t *testing.T) {
	noco, fake := newTestClient(t)
	fx := newLinkedFixture(t, noco, fake, "Suppliers", "Suppliers", true)

	fake.FailWith("GET /api/v2/tables/"+fx.table.ID+"/links/", 500)
	fx.record.Attributes["Suppliers_id"] = float64(fx.linkedID)

	// The recovery path finds the table by exact title and resolves the
	// foreign key.
	records, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fx.linkedID, records[0].ID)
}

func TestGetLinkedRecordsRecoveryNeedsExactTitle(t *testing.T) {
	noco, fake := newTestClient(t)
	// Target table title differs from the column title, so the recovery
	// path cannot find it.
	fx := newLinkedFixture(t, noco, fake, "Vendors", "Supplier", true)

	fake.FailWith("GET /api/v2/tables/"+fx.table.ID+"/links/", 500)
	fx.record.Attributes["Vendors_id"] = float64(fx.linkedID)

	_, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	var notFound LinkedTableNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "Vendors", notFound.Column)
}

func TestGetLinkedRecordsReraisesOriginalError(t *testing.T) {
	noco, fake := newTestClient(t)
	fx := newLinkedFixture(t, noco, fake, "Suppliers", "Suppliers", true)

	// No foreign key to fall back on: the transport error surfaces as-is.
	fake.FailWith("GET /api/v2/tables/"+fx.table.ID+"/links/", 503)

	_, err := fx.record.GetLinkedRecords(context.Background(), fx.column)
	var apiErr *transport.APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, 503, apiErr.StatusCode)
}
