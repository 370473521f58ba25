package nocodb

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// batchResolver turns a set of row ids into Records with a single
// `(Id,in,...)` filter query driven to completion by the pager.
//
// Guarantees: an empty input resolves to an empty result without touching
// the network; the result cardinality is at most the input cardinality
// (rows deleted server-side between listing and fetch are silently
// tolerated); ordering is server-defined, callers requiring input order
// must re-sort.
type batchResolver struct {
	table *Table
}

func (r batchResolver) Resolve(ctx context.Context, recordIDs []int) ([]*Record, error) {
	if len(recordIDs) == 0 {
		return []*Record{}, nil
	}

	parts := make([]string, 0, len(recordIDs))
	for _, id := range recordIDs {
		parts = append(parts, strconv.Itoa(id))
	}

	params := url.Values{}
	params.Set("where", "(Id,in,"+strings.Join(parts, ",")+")")
	return r.table.GetRecords(ctx, params)
}
