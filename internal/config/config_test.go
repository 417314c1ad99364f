package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	want := Defaults()
	assert.Equal(t, want, cfg)
	assert.Empty(t, cfg.File)
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, DefaultFile, "rules: deprecated.csv\nworkers: 3\n")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "deprecated.csv", cfg.Rules)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, DefaultFile, cfg.File)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.yaml", `
rules: from-file.cue
workers: 2
buffer: 64
name_key: official_name
prioritize_specific: false
`)
	t.Setenv("OPINIONATED_WORKERS", "4")
	t.Setenv("OPINIONATED_RULES", "from-env.cue")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("rules", "", "")
	fs.Int("workers", 1, "")
	fs.Int("buffer", 1024, "")
	require.NoError(t, fs.Parse([]string{"--rules", "from-flag.cue"}))

	v := New()
	require.NoError(t, BindFlags(v, fs, "rules", "workers", "buffer", "not-a-flag"))

	cfg, err := Load(v, path)
	require.NoError(t, err)

	assert.Equal(t, "from-flag.cue", cfg.Rules, "flag beats env and file")
	assert.Equal(t, 4, cfg.Workers, "env beats file")
	assert.Equal(t, 64, cfg.Buffer, "file beats unset flag")
	assert.Equal(t, "official_name", cfg.NameKey)
	assert.False(t, cfg.PrioritizeSpecific)
	assert.Equal(t, "wikidata", cfg.ReferenceKey)
	assert.Equal(t, path, cfg.File)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "workers: 0\nreference_key: name\n")

	_, err := Load(New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers: must be at least 1, got 0")
	assert.Contains(t, err.Error(), "reference_key and name_key must differ")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero buffer", func(c *Config) { c.Buffer = 0 }, "buffer: must be at least 1"},
		{"empty reference key", func(c *Config) { c.ReferenceKey = " " }, "reference_key: must not be empty"},
		{"empty prefix", func(c *Config) { c.LabelKeyPrefix = "" }, "label_key_prefix: must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
