package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name:  "defaults",
			setup: func() { viper.Reset() },
			check: func(t *testing.T, c *Config) {
				assert.True(t, c.Hashing.Enabled)
				assert.Equal(t, "sha256", c.Hashing.Algorithm)
				assert.Equal(t, 1024*1024, c.Copy.BufferSize)
				assert.Equal(t, 6, c.Archive.CompressionLevel)
				assert.True(t, c.Reports.TimeOffset)
				assert.True(t, c.Reports.UploadLog)
				assert.True(t, c.Reports.HashCSV)
				assert.Equal(t, "Documents", c.Reports.DocumentsDir)
				assert.Equal(t, 300*time.Second, c.Batch.AutosaveInterval)
				assert.Equal(t, 30*time.Second, c.Batch.ProcessingInterval)
				assert.Equal(t, "default_forensic", c.Templates.Default)
				assert.NotEmpty(t, c.Templates.UserDir)
				assert.Equal(t, "batch_queue.json", filepath.Base(c.Batch.QueueFile))
				assert.True(t, c.Media.FilenameTimes)
				assert.Equal(t, 30.0, c.Media.FrameRate)
			},
		},
		{
			name: "buffer size is clamped",
			setup: func() {
				viper.Reset()
				viper.Set("copy.buffer_size", 10)
				viper.Set("copy.workers", 1000)
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, minBufferSize, c.Copy.BufferSize)
				assert.Equal(t, 64, c.Copy.Workers)
			},
		},
		{
			name: "interval strings are parsed",
			setup: func() {
				viper.Reset()
				viper.Set("batch.autosave_interval", "2m")
				viper.Set("batch.processing_interval", "10s")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 2*time.Minute, c.Batch.AutosaveInterval)
				assert.Equal(t, 10*time.Second, c.Batch.ProcessingInterval)
			},
		},
		{
			name: "log-level flag wins",
			setup: func() {
				viper.Reset()
				viper.Set("log-level", "debug")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "debug", c.Logging.Level)
			},
		},
		{
			name: "unparseable value",
			setup: func() {
				viper.Reset()
				viper.Set("copy.buffer_size", "lots")
			},
			expectError: true,
		},
		{
			name: "compression out of range",
			setup: func() {
				viper.Reset()
				viper.Set("archive.compression_level", 12)
			},
			expectError: true,
		},
		{
			name: "unsupported algorithm",
			setup: func() {
				viper.Reset()
				viper.Set("hashing.algorithm", "md5")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			config, err := Load()
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, config)
			tt.check(t, config)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".casefiler.yml")
	content := `
technician:
  name: "J. Doe"
  badge: "4411"
archive:
  auto_create: true
  at_location: true
  upload:
    bucket: evidence-archive
    prefix: district-7
progress:
  addr: "localhost:8090"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, "J. Doe", config.Technician.Name)
	assert.Equal(t, "4411", config.Technician.Badge)
	assert.True(t, config.Archive.AutoCreate)
	assert.True(t, config.Archive.AtLocation)
	assert.Equal(t, "evidence-archive", config.Archive.Upload.Bucket)
	assert.Equal(t, "localhost:8090", config.Progress.Addr)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("CASEFILER_TECHNICIAN_NAME", "Env Tech")

	v := viper.New()
	v.SetEnvPrefix("CASEFILER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(EnvKeyReplacer())

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "Env Tech", config.Technician.Name)
}

func TestValidateConfigWithDetails(t *testing.T) {
	v := viper.New()
	base, err := LoadFrom(v)
	require.NoError(t, err)

	tests := []struct {
		name       string
		mutate     func(c *Config)
		errorField string
		warnField  string
	}{
		{"documents dir with separator", func(c *Config) { c.Reports.DocumentsDir = "a/b" }, "reports.documents_dir", ""},
		{"bucket with scheme", func(c *Config) { c.Archive.Upload.Bucket = "gs://x" }, "archive.upload.bucket", ""},
		{"prefix without bucket", func(c *Config) { c.Archive.Upload.Prefix = "p" }, "archive.upload.prefix", ""},
		{"bad progress addr", func(c *Config) { c.Progress.Addr = "nope" }, "progress.addr", ""},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format", ""},
		{"frame rate out of range", func(c *Config) { c.Media.FrameRate = 0 }, "media.frame_rate", ""},
		{"hashing disabled", func(c *Config) { c.Hashing.Enabled = false }, "", "hashing.enabled"},
		{"no technician", func(c *Config) { c.Technician.Name = "" }, "", "technician.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			result := ValidateConfigWithDetails(&c)

			if tt.errorField != "" {
				require.True(t, result.HasErrors())
				assert.Equal(t, tt.errorField, result.Errors[0].Field)
			}
			if tt.warnField != "" {
				fields := make([]string, 0, len(result.Warnings))
				for _, w := range result.Warnings {
					fields = append(fields, w.Field)
				}
				assert.Contains(t, fields, tt.warnField)
			}
			assert.NotEmpty(t, result.String())
		})
	}
}
