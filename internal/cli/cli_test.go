package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `currency: IRR
products:
  - id: mug
    name: Mug
    price: 120000
    initial_stock: 3
`

// workspace points the store and catalog at a temp dir through the same
// environment overrides an operator would use.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog), 0o644))
	t.Setenv("MINISHOP_STORE_PATH", filepath.Join(dir, "shop.db"))
	t.Setenv("MINISHOP_CATALOG_PATH", catalogPath)
	t.Setenv("MINISHOP_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	dir := workspace(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")
	assert.FileExists(t, filepath.Join(dir, "shop.db"))
}

func TestStockSetAndGet(t *testing.T) {
	workspace(t)

	out, err := run(t, "stock", "set", "mug", "12")
	require.NoError(t, err)
	assert.Equal(t, "mug\tavailable=12\treserved=0\n", out)

	out, err = run(t, "stock", "get", "mug")
	require.NoError(t, err)
	assert.Equal(t, "mug\tavailable=12\treserved=0\n", out)

	_, err = run(t, "stock", "get", "teapot")
	assert.Error(t, err)

	_, err = run(t, "stock", "set", "mug", "many")
	assert.ErrorContains(t, err, "available must be an integer")
}

func TestSweepOnEmptyStore(t *testing.T) {
	workspace(t)

	out, err := run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "sweep: scanned=0 expired=0")
	assert.Contains(t, out, "recheck: due=0")

	out, err = run(t, "sweep", "--skip-recheck")
	require.NoError(t, err)
	assert.NotContains(t, out, "recheck:")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	workspace(t)
	t.Setenv("MINISHOP_GATEWAY_DRIVER", "paypal")

	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "gateway.driver")
}

func TestLoadCatalogSeedsOnce(t *testing.T) {
	workspace(t)

	a, err := newApp("")
	require.NoError(t, err)
	defer a.Close()

	_, report, err := a.loadCatalog(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	_, err = a.stock().Set(t.Context(), "mug", 1)
	require.NoError(t, err)
	_, report, err = a.loadCatalog(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Kept)

	s, err := a.stock().Get(t.Context(), "mug")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Available)
}
