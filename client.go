package nocodb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/nocodb/nocodb.go/pkg/config"
	"github.com/nocodb/nocodb.go/pkg/logger"
	"github.com/nocodb/nocodb.go/pkg/transport"
)

// NocoDB is the top-level client. It owns the transport and hands out Base
// and Table views scoped to one deployment. All views hold a read-only
// reference back to it; none of them own any Records.
type NocoDB struct {
	transport   *transport.Client
	logger      zerolog.Logger
	pageSize    int
	strictPages bool
}

// Option configures a NocoDB client.
type Option func(*NocoDB)

// WithLogger sets the logger used by the client and its transport.
func WithLogger(l zerolog.Logger) Option {
	return func(n *NocoDB) { n.logger = l }
}

// WithPageSize overrides the page size used for unbounded listings.
func WithPageSize(size int) Option {
	return func(n *NocoDB) {
		if size > 0 {
			n.pageSize = size
		}
	}
}

// WithStrictPages makes a short page before the server's last-page marker
// a hard protocol error. The default tolerates short pages as server
// anomalies and keeps scanning.
func WithStrictPages(strict bool) Option {
	return func(n *NocoDB) { n.strictPages = strict }
}

// New creates a client for the deployment at url authenticating with the
// given API token.
func New(url, apiToken string, opts ...Option) *NocoDB {
	n := &NocoDB{
		logger:   zerolog.Nop(),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.transport = transport.New(url, apiToken, transport.WithLogger(n.logger))
	return n
}

// FromConfig creates a client from a loaded configuration.
func FromConfig(cfg config.Config, opts ...Option) (*NocoDB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &NocoDB{
		logger:      zerolog.Nop(),
		pageSize:    defaultPageSize,
		strictPages: cfg.StrictPages,
	}
	if cfg.PageSize > 0 {
		n.pageSize = cfg.PageSize
	}
	if cfg.LogPath != "" {
		logData, err := logger.New().FromPath(cfg.LogPath).Make()
		if err != nil {
			return nil, err
		}
		n.logger = logData.Logger
	}
	for _, opt := range opts {
		opt(n)
	}

	topts := []transport.Option{transport.WithLogger(n.logger)}
	if cfg.RequestsPerSecond > 0 {
		topts = append(topts, transport.WithRateLimit(cfg.RequestsPerSecond))
	}
	if cfg.Timeout > 0 {
		topts = append(topts, transport.WithTimeout(time.Duration(cfg.Timeout)))
	}
	n.transport = transport.New(cfg.URL, cfg.APIToken, topts...)
	return n, nil
}

// SetHTTPClient replaces the transport's http.Client. Intended for tests
// that install a mock round tripper.
func (n *NocoDB) SetHTTPClient(h *http.Client) *NocoDB {
	transport.WithHTTPClient(h)(n.transport)
	return n
}

// Call executes one raw API call. Status handling follows the transport
// contract: non-2xx responses surface as *transport.APIError.
func (n *NocoDB) Call(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	return n.transport.Call(ctx, method, path, query, body)
}

// GetBases lists the bases visible to the API token.
func (n *NocoDB) GetBases(ctx context.Context) ([]*Base, error) {
	raw, err := n.Call(ctx, http.MethodGet, "meta/bases", nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope listEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode base list: %w", err)
	}

	bases := make([]*Base, 0, len(envelope.List))
	for _, meta := range envelope.List {
		bases = append(bases, newBase(n, meta))
	}
	return bases, nil
}

// GetBase fetches one base by id.
func (n *NocoDB) GetBase(ctx context.Context, baseID string) (*Base, error) {
	raw, err := n.Call(ctx, http.MethodGet, "meta/bases/"+baseID, nil, nil)
	if err != nil {
		return nil, err
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode base %s: %w", baseID, err)
	}
	return newBase(n, meta), nil
}

// GetBaseByTitle finds a base by exact title.
func (n *NocoDB) GetBaseByTitle(ctx context.Context, title string) (*Base, error) {
	bases, err := n.GetBases(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range bases {
		if b.Title == title {
			return b, nil
		}
	}
	return nil, BaseNotFoundError{Title: title}
}

// CreateBase creates a new base and returns it.
func (n *NocoDB) CreateBase(ctx context.Context, title string) (*Base, error) {
	raw, err := n.Call(ctx, http.MethodPost, "meta/bases", nil, map[string]any{"title": title})
	if err != nil {
		return nil, err
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode created base: %w", err)
	}
	n.logger.Info().Str("base", title).Msg("base created")
	return newBase(n, meta), nil
}

// GetTable fetches one table by id. The returned metadata includes the
// table's columns.
func (n *NocoDB) GetTable(ctx context.Context, tableID string) (*Table, error) {
	raw, err := n.Call(ctx, http.MethodGet, "meta/tables/"+tableID, nil, nil)
	if err != nil {
		return nil, err
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode table %s: %w", tableID, err)
	}
	return newTable(n, meta), nil
}

// GetFile downloads an attachment by its signed URL.
func (n *NocoDB) GetFile(ctx context.Context, signedURL string) ([]byte, error) {
	return n.transport.GetFile(ctx, signedURL)
}

// UploadFile uploads a local file to the storage endpoint and returns the
// attachment descriptors to store in an attachment field.
func (n *NocoDB) UploadFile(ctx context.Context, path, mimetype string) ([]map[string]any, error) {
	return n.transport.UploadFile(ctx, path, mimetype)
}
