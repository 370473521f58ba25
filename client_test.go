package nocodb

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nocodb/nocodb.go/internal/fakenoco"
	"github.com/nocodb/nocodb.go/pkg/config"
)

func TestGetBases(t *testing.T) {
	noco, fake := newTestClient(t)
	fake.AddBase("First")
	fake.AddBase("Second")

	bases, err := noco.GetBases(context.Background())
	require.NoError(t, err)
	require.Len(t, bases, 2)
	assert.Equal(t, "First", bases[0].Title)
}

func TestGetBaseByTitle(t *testing.T) {
	noco, fake := newTestClient(t)
	fake.AddBase("UnitTest")

	base, err := noco.GetBaseByTitle(context.Background(), "UnitTest")
	require.NoError(t, err)
	assert.Equal(t, "UnitTest", base.Title)

	_, err = noco.GetBaseByTitle(context.Background(), "Missing")
	var notFound BaseNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
}

func TestCreateBaseAndTable(t *testing.T) {
	noco, _ := newTestClient(t)
	ctx := context.Background()

	base, err := noco.CreateBase(ctx, "Fresh")
	require.NoError(t, err)
	require.NotEmpty(t, base.ID)

	table, err := base.CreateTable(ctx, "Things")
	require.NoError(t, err)
	assert.Equal(t, "Things", table.Title)
	assert.Equal(t, base.ID, table.BaseID)

	again, err := base.GetTableByTitle(ctx, "Things")
	require.NoError(t, err)
	assert.Equal(t, table.ID, again.ID)
}

func TestBaseInfo(t *testing.T) {
	noco, fake := newTestClient(t)
	baseID := fake.AddBase("UnitTest")

	base, err := noco.GetBase(context.Background(), baseID)
	require.NoError(t, err)

	info, err := base.GetBaseInfo(context.Background())
	require.NoError(t, err)
	for _, k := range []string{"Node", "Arch", "Platform", "Docker", "RootDB", "PackageVersion"} {
		assert.Contains(t, info, k)
	}
}

func TestBaseDelete(t *testing.T) {
	noco, fake := newTestClient(t)
	baseID := fake.AddBase("Doomed")

	base, err := noco.GetBase(context.Background(), baseID)
	require.NoError(t, err)
	require.NoError(t, base.Delete(context.Background()))

	bases, err := noco.GetBases(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bases)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Config{
		URL:         "http://localhost:8080",
		APIToken:    "token",
		PageSize:    50,
		StrictPages: true,
	}
	noco, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 50, noco.pageSize)
	assert.True(t, noco.strictPages)
}

func TestFromConfigRejectsInvalid(t *testing.T) {
	_, err := FromConfig(config.Config{})
	require.ErrorIs(t, err, config.ErrNoURL)
}

func TestFromConfigLogPath(t *testing.T) {
	fake := fakenoco.NewServer()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	logPath := filepath.Join(t.TempDir(), "client.log")
	noco, err := FromConfig(config.Config{URL: srv.URL, LogPath: logPath})
	require.NoError(t, err)

	_, err = noco.CreateBase(context.Background(), "Logged")
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "base created")
}
