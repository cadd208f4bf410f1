package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifestDefault(t *testing.T) {
	m, err := LoadManifest("")
	require.NoError(t, err)
	assert.Len(t, m.Indexes, 6)
	assert.Len(t, m.Files, 6)
	assert.Equal(t, []string{"web", "app", "auth", "sales", "performance", "api"}, m.IndexNames())
}

func TestLoadManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	body := `
indexes:
  - name: web
  - name: api
    datatype: event
files:
  - file: web_access.log
    index: web
    sourcetype: access_combined
  - file: api.log
    index: api
    sourcetype: _json
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Indexes, 2)
	assert.Equal(t, "event", m.Indexes[0].DataType, "datatype defaults to event")
	require.Len(t, m.Files, 2)
	assert.Equal(t, "access_combined", m.Files[0].SourceType)
}

func TestLoadManifestRejectsUndeclaredIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	body := `
indexes:
  - name: web
files:
  - file: api.log
    index: api
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared index")
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
