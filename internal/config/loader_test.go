package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the gh-grep config dir.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "gh-grep")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultParallel, cfg.Grep.Parallel)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 128, cfg.Cache.TreeEntries)
	assert.Equal(t, "gh-grep", cfg.Metrics.Job)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Telemetry.ShutdownTimeout.Duration())
	assert.False(t, cfg.GitHub.Token.IsSet())
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)

	path := writeConfig(t, dir, `github:
  host: ghe.example.com
  token: gho_fromfile
grep:
  parallel: 3
ratelimit:
  requests_per_second: 2.5
cache:
  tree_entries: 16
telemetry:
  shutdown_timeout: 2s
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ghe.example.com", cfg.GitHub.Host)
	assert.Equal(t, "gho_fromfile", cfg.GitHub.Token.Value())
	assert.Equal(t, 3, cfg.Grep.Parallel)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1, cfg.RateLimit.Burst, "burst defaults to 1 once a rate is set")
	assert.Equal(t, 16, cfg.Cache.TreeEntries)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.ShutdownTimeout.Duration())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "grep:\n  parallel: 3\n", 0600)

	t.Setenv("GH_GREP_GREP_PARALLEL", "9")
	t.Setenv("GH_GREP_GITHUB_API_URL", "https://api.example.com/")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Grep.Parallel)
	assert.Equal(t, "https://api.example.com/", cfg.GitHub.APIURL)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "grep:\n  parallel: 3\n", 0644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsPathOutsideConfigDir(t *testing.T) {
	setupTestHome(t)
	outside := filepath.Join(t.TempDir(), "config.yaml")

	_, err := Load(outside)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "logging:\n  format: xml\n", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging format")
}

func TestLoadEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GH_GREP_TEST_ENVFILE=loaded\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("GH_GREP_TEST_ENVFILE") })

	require.NoError(t, LoadEnvFile(envFile))
	assert.Equal(t, "loaded", os.Getenv("GH_GREP_TEST_ENVFILE"))

	assert.NoError(t, LoadEnvFile(""))
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"GH_GREP_GREP_PARALLEL", "grep.parallel"},
		{"GH_GREP_GITHUB_API_URL", "github.api_url"},
		{"GH_GREP_RATELIMIT_REQUESTS_PER_SECOND", "ratelimit.requests_per_second"},
		{"GH_GREP_DEBUG", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}
