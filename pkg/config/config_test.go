package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrysync/carry/pkg/reconcile"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = "node-1"
	require.NoError(t, validate.Struct(cfg))
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "carry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodeId: node-1
schemaPath: /etc/carry/schema.json
strategy: timestampWins
server:
  bindAddr: 0.0.0.0:9090
postgres:
  host: db.internal
  port: 5432
  database: carry
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, "/etc/carry/schema.json", cfg.SchemaPath)
	assert.Equal(t, reconcile.TimestampWins, cfg.Strategy)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.BindAddr)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	// unset fields still fall back to DefaultConfig
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMissingNodeID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "carry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`schemaPath: schema.json`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidStrategy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "carry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nodeId: node-1
strategy: first-write-wins
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
