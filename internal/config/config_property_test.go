//go:build property
// +build property

package config

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/viper"
)

// TestConfigurationProperties checks clamping and range validation over
// generated inputs.
func TestConfigurationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("buffer size always lands in range", prop.ForAll(
		func(size int) bool {
			v := viper.New()
			v.Set("copy.buffer_size", size)
			cfg, err := LoadFrom(v)
			if err != nil {
				return false
			}
			return cfg.Copy.BufferSize >= minBufferSize && cfg.Copy.BufferSize <= maxBufferSize
		},
		gen.IntRange(-1<<20, 64<<20),
	))

	properties.Property("compression level validity matches range", prop.ForAll(
		func(level int) bool {
			v := viper.New()
			v.Set("archive.compression_level", level)
			_, err := LoadFrom(v)
			inRange := level >= 0 && level <= 9
			return inRange == (err == nil)
		},
		gen.IntRange(-5, 15),
	))

	properties.Property("non-positive intervals are rejected", prop.ForAll(
		func(seconds int) bool {
			v := viper.New()
			v.Set("batch.autosave_interval", time.Duration(seconds)*time.Second)
			_, err := LoadFrom(v)
			return (seconds <= 0) == (err != nil)
		},
		gen.IntRange(-100, 1000),
	))

	properties.TestingRun(t)
}
