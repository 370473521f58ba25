package nocodb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

const defaultPageSize = 1000

type pageInfo struct {
	IsLastPage bool `json:"isLastPage"`
}

type listEnvelope struct {
	List     []map[string]any `json:"list"`
	PageInfo pageInfo         `json:"pageInfo"`
}

// pager drives the offset/limit listing protocol over one paged endpoint.
//
// Bounded mode is selected when the caller supplied an explicit offset or
// limit: exactly one page is fetched and returned as-is. Otherwise the
// pager seeds offset=0 with the client page size and follows pages until
// the server's last-page marker. The offset always advances by the fixed
// limit, not by the number of rows actually returned; a short page before
// the marker is a server anomaly, tolerated unless strict-pages is on.
type pager struct {
	noco    *NocoDB
	path    string
	params  url.Values
	limit   int
	bounded bool
}

func newPager(noco *NocoDB, path string, params url.Values) *pager {
	if params == nil {
		params = url.Values{}
	}
	p := &pager{noco: noco, path: path, params: params}
	if params.Has("offset") || params.Has("limit") {
		p.bounded = true
		p.limit, _ = strconv.Atoi(params.Get("limit"))
	} else {
		p.limit = noco.pageSize
		params.Set("offset", "0")
		params.Set("limit", strconv.Itoa(p.limit))
	}
	return p
}

// All fetches rows until exhaustion. Transport errors propagate unmodified;
// no retries happen at this layer.
func (p *pager) All(ctx context.Context) ([]map[string]any, error) {
	offset, _ := strconv.Atoi(p.params.Get("offset"))
	var rows []map[string]any

	for {
		raw, err := p.noco.Call(ctx, http.MethodGet, p.path, p.params, nil)
		if err != nil {
			return nil, err
		}

		var page listEnvelope
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("failed to decode list response from %s: %w", p.path, err)
		}
		rows = append(rows, page.List...)

		if p.bounded || page.PageInfo.IsLastPage {
			return rows, nil
		}
		if p.noco.strictPages && len(page.List) < p.limit {
			return nil, ShortPageError{Path: p.path, Offset: offset, Limit: p.limit, Got: len(page.List)}
		}

		offset += p.limit
		p.params.Set("offset", strconv.Itoa(offset))
	}
}
