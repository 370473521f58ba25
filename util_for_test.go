package nocodb

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/nocodb/nocodb.go/internal/fakenoco"
)

// newTestClient starts an in-memory fake deployment and returns a client
// pointed at it, plus the fake for seeding and assertions.
func newTestClient(t *testing.T, opts ...Option) (*NocoDB, *fakenoco.Server) {
	t.Helper()

	fake := fakenoco.NewServer()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return New(srv.URL, "test-token", opts...), fake
}

// seedTable creates a base with one table and returns the table view.
func seedTable(t *testing.T, noco *NocoDB, fake *fakenoco.Server, title string) *Table {
	t.Helper()

	baseID := fake.AddBase("UnitTest")
	tableID := fake.AddTable(baseID, title)

	table, err := noco.GetTable(context.Background(), tableID)
	if err != nil {
		t.Fatalf("failed to fetch seeded table: %v", err)
	}
	return table
}
