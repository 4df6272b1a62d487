package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parnexcodes/ferry/internal/transfer"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.Output)
	assert.True(t, cfg.Limits.Multiple)
	assert.Equal(t, int64(transfer.DefaultChunkSize), cfg.Upload.ChunkSize)
	assert.Equal(t, 5*time.Minute, cfg.Upload.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Upload.RetryDelay)
	assert.Equal(t, 3, cfg.Upload.RetryAttempts)
	assert.Equal(t, 5, cfg.Upload.Concurrency)
	assert.True(t, cfg.Upload.AutoStart)
	assert.Equal(t, string(transfer.RemoveByFileID), cfg.Upload.RemoveMode)
	assert.False(t, cfg.Upload.RollbackOnFailure)
}

func TestLoadConfig_File(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "ferry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoints:
  chunk_url: http://localhost:8080/chunk
  merge_url: http://localhost:8080/merge
  remove_url: http://localhost:8080/remove
limits:
  max_files: 4
  accepted_types: ["image/*", "application/pdf"]
upload:
  chunked: true
  chunk_size: 1024
  timeout: 30s
  remove_mode: path
  rollback_on_failure: true
options:
  scan_for_virus: true
  hash_algorithm: SHA-512
`), 0644))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	engine := cfg.EngineConfig()
	assert.True(t, engine.Chunked)
	assert.Equal(t, int64(1024), engine.ChunkSize)
	assert.Equal(t, 30*time.Second, engine.Timeout)
	assert.Equal(t, "http://localhost:8080/merge", engine.Endpoints.Merge)
	assert.Equal(t, 4, engine.Limits.MaxFiles)
	assert.Equal(t, []string{"image/*", "application/pdf"}, engine.Limits.AcceptedTypes)
	assert.True(t, engine.Limits.Multiple)
	assert.Equal(t, transfer.RemoveByPath, engine.RemoveMode)
	assert.Equal(t, "http://localhost:8080/remove", engine.Endpoints.Remove)
	assert.True(t, cfg.Upload.RollbackOnFailure)
	assert.True(t, engine.Options.ScanForVirus)
	assert.Equal(t, transfer.HashSHA512, engine.Options.HashAlgorithm)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Endpoints: EndpointsConfig{UploadURL: "http://localhost/upload"},
			Upload:    UploadConfig{ChunkSize: 10, RemoveMode: "file_id"},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError string
	}{
		{name: "single-shot", mutate: func(c *Config) {}},
		{
			name:        "missing upload url",
			mutate:      func(c *Config) { c.Endpoints.UploadURL = "" },
			expectError: "endpoints.upload_url",
		},
		{
			name: "chunked without merge url",
			mutate: func(c *Config) {
				c.Upload.Chunked = true
				c.Endpoints.ChunkURL = "http://localhost/chunk"
			},
			expectError: "merge_url",
		},
		{
			name: "chunked with zero chunk size",
			mutate: func(c *Config) {
				c.Upload.Chunked = true
				c.Upload.ChunkSize = 0
				c.Endpoints.ChunkURL = "http://localhost/chunk"
				c.Endpoints.MergeURL = "http://localhost/merge"
			},
			expectError: "chunk_size",
		},
		{
			name:        "unknown remove mode",
			mutate:      func(c *Config) { c.Upload.RemoveMode = "trash" },
			expectError: "remove_mode",
		},
		{
			name:        "rollback without remove url",
			mutate:      func(c *Config) { c.Upload.RollbackOnFailure = true },
			expectError: "endpoints.remove_url",
		},
		{
			name: "rollback with remove url",
			mutate: func(c *Config) {
				c.Upload.RollbackOnFailure = true
				c.Endpoints.RemoveURL = "http://localhost/remove"
			},
		},
		{
			name:        "unknown hash algorithm",
			mutate:      func(c *Config) { c.Options.HashAlgorithm = "crc32" },
			expectError: "hash_algorithm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
			}
		})
	}
}

func TestParseHashAlgorithm(t *testing.T) {
	tests := map[string]transfer.HashAlgorithm{
		"":        transfer.HashSHA256,
		"sha256":  transfer.HashSHA256,
		"SHA-512": transfer.HashSHA512,
		"md5":     transfer.HashMD5,
	}
	for name, expected := range tests {
		got, err := ParseHashAlgorithm(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, got, name)
	}
}
