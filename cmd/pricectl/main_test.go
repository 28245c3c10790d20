package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upstreamSnapshot = `[
	{"extension": ".com", "registration": "Rp100.000", "renewal": "Rp100.000", "transfer": "Rp100.000"},
	{"extension": ".net", "registration": "Rp150.000", "renewal": "Rp160.000", "transfer": null}
]`

func writeConfig(t *testing.T, upstreamURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := fmt.Sprintf(`
storage:
  backend: memory
cache:
  backend: memory
upstream:
  url: %s
  retries: 0
pricing:
  margin_type: percentage
  margin_value: "20"
  rounding_rule: up_1000
`, upstreamURL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamSnapshot))
	}))
	t.Cleanup(server.Close)

	var stdout, stderr bytes.Buffer
	full := append([]string{"pricectl", "--config", writeConfig(t, server.URL)}, args...)
	err := newApp(&stdout, &stderr).RunContext(context.Background(), full)
	return stdout.String(), err
}

func TestSyncCommand_JSON(t *testing.T) {
	out, err := runCLI(t, "sync", "--json")
	require.NoError(t, err)

	var view struct {
		Mode      string   `json:"mode"`
		Processed int      `json:"processed_count"`
		Created   int      `json:"created_count"`
		Errors    []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "all", view.Mode)
	assert.Equal(t, 2, view.Processed)
	assert.Equal(t, 2, view.Created)
	assert.Empty(t, view.Errors)
}

func TestSyncCommand_RejectsUnknownMode(t *testing.T) {
	_, err := runCLI(t, "sync", "--mode", "everything")
	assert.Error(t, err)
}

func TestDeriveCommand(t *testing.T) {
	out, err := runCLI(t, "derive", "--ext", "com")
	require.NoError(t, err)

	assert.Contains(t, out, "EXTENSION")
	assert.Contains(t, out, ".com")
	assert.Contains(t, out, "Rp 120.000")
	assert.NotContains(t, out, ".net")
}

func TestExportCommand_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	_, err := runCLI(t, "export", "--output", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Extension,Register,Renew,Transfer,Group\n", string(data))
}

func TestMigrateCommand_NeedsPostgres(t *testing.T) {
	_, err := runCLI(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
}

func TestNormalizeAll(t *testing.T) {
	assert.Equal(t, []string{".id", ".com", ".co.id"}, normalizeAll([]string{"id,.COM", " co.id ", ""}))
	assert.Nil(t, normalizeAll(nil))
}
