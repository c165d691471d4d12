package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with an empty HOME so no
// stray vigil.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "vigil.db", cfg.DB)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Empty(t, cfg.Models)
	assert.Equal(t, 60*time.Second, cfg.Artifacts.FetchTimeout)
	assert.Equal(t, 10*time.Second, cfg.Grounding.Timeout)
	assert.Zero(t, cfg.Cache.MaxEntries)
	assert.True(t, cfg.Sweep.FindDelta)
}

func TestLoadFileFromWorkingDirectory(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vigil.yaml"), []byte(`
db: /var/lib/vigil/vigil.db
models: [aml, marm]
artifacts:
  bucket: vigil-models
  fetch_timeout: 30s
cache:
  max_entries: 8
sweep:
  find_delta: false
`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vigil/vigil.db", cfg.DB)
	assert.Equal(t, []string{"aml", "marm"}, cfg.Models)
	assert.Equal(t, "vigil-models", cfg.Artifacts.Bucket)
	assert.Equal(t, 30*time.Second, cfg.Artifacts.FetchTimeout)
	assert.Equal(t, 8, cfg.Cache.MaxEntries)
	assert.False(t, cfg.Sweep.FindDelta)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\n"), 0o644))
	t.Setenv("VIGIL_LISTEN", ":9100")
	t.Setenv("VIGIL_GROUNDING_URL", "http://grounding.local/ground")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, "http://grounding.local/ground", cfg.Grounding.URL)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "vigil.yaml")
	require.NoError(t, os.WriteFile(path, []byte("artifacts:\n  bucket: b\n  dir: /tmp/models\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}
