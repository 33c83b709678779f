package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensworks/etlpipe/internal/fileset"
)

func validConfig() Config {
	return Config{
		PipelineID:          "garmin",
		DataDir:             "/data",
		FileTypes:           fileset.DefaultTypes(),
		MaxBatches:          DefaultMaxBatches,
		MinFileSetsPerBatch: DefaultMinFileSetsPerBatch,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"empty pipeline id": func(c *Config) { c.PipelineID = "" },
		"empty data dir":    func(c *Config) { c.DataDir = "" },
		"zero max batches":  func(c *Config) { c.MaxBatches = 0 },
		"zero min per batch": func(c *Config) {
			c.MinFileSetsPerBatch = 0
		},
		"no file types": func(c *Config) { c.FileTypes = nil },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
