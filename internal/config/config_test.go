package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[llm]
provider = "claude"
model = "claude-sonnet-4-20250514"

[database]
path = "/tmp/reviews.db"

[screening]
concurrency = 8

[screening.prompts]
rater1_title_abstract = "custom rater one"

[stats]
base_url = "http://stats:8001"

[log]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, "/tmp/reviews.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Screening.Concurrency)
	assert.Equal(t, "custom rater one", cfg.Screening.Prompts.Rater1TitleAbstract)
	assert.Equal(t, "http://stats:8001", cfg.Stats.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults fill what the file omits.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sift.db", cfg.Database.Path)
	assert.Equal(t, 4, cfg.Screening.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIFT_LLM_API_KEY", "sk-test")
	t.Setenv("NCBI_API_KEY", "ncbi-test")
	t.Setenv("PORT", "3000")

	cfg, err := Load(writeConfig(t, `
[llm]
api_key = "file-key"

[server]
port = 9090
`))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "ncbi-test", cfg.NCBI.APIKey)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadBadTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[server\nport = 1"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to parse TOML")
}
