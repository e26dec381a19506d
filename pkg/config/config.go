// Package config provides the unified configuration surface for Treeport.
// It defines a single ImportConfig structure consumed by the importer and the
// CLI, with sensible defaults and upfront validation.
//
// Example usage:
//
//	cfg := config.DefaultImportConfig()
//	cfg.MaxRecords = 1000
//	cfg.Quiet = true
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

// Compression codecs accepted by the destination writer.
const (
	// CompressionZstd compresses destination objects with zstd (the default)
	CompressionZstd = "zstd"
	// CompressionNone writes destination objects uncompressed
	CompressionNone = "none"
)

// DefaultProgressIntervalBytes is the default amount of compressed output
// between two progress reports.
const DefaultProgressIntervalBytes = 50 * 1000 * 1000 // 50MB

// DefaultBatchSize is the default number of records per columnar write batch.
const DefaultBatchSize = 1000

// ImportConfig configures a single import run.
type ImportConfig struct {
	// MaxRecords limits how many source records are imported.
	// Negative means unbounded.
	MaxRecords int64 `yaml:"max_records" json:"max_records" mapstructure:"max_records"`

	// Quiet suppresses the schema report and progress output.
	// It does not affect structured logging.
	Quiet bool `yaml:"quiet" json:"quiet" mapstructure:"quiet"`

	// ProgressIntervalBytes is the amount of compressed output between two
	// progress reports.
	ProgressIntervalBytes int64 `yaml:"progress_interval_bytes" json:"progress_interval_bytes" mapstructure:"progress_interval_bytes"`

	// Compression selects the destination object codec: "zstd" or "none".
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`

	// BatchSize is the number of records buffered by the destination writer
	// before a columnar flush.
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`

	// LogLevel sets the structured log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
}

// DefaultImportConfig returns an ImportConfig with production defaults:
// unbounded records, zstd compression, progress every 50MB.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		MaxRecords:            -1,
		Quiet:                 false,
		ProgressIntervalBytes: DefaultProgressIntervalBytes,
		Compression:           CompressionZstd,
		BatchSize:             DefaultBatchSize,
		LogLevel:              "info",
	}
}

// Validate checks the configuration for invalid values.
func (c *ImportConfig) Validate() error {
	switch c.Compression {
	case CompressionZstd, CompressionNone:
	default:
		return treeporterrors.Newf(treeporterrors.ErrorTypeConfig,
			"unknown compression codec %q", c.Compression)
	}

	if c.ProgressIntervalBytes <= 0 {
		return treeporterrors.New(treeporterrors.ErrorTypeConfig,
			"progress interval must be positive")
	}

	if c.BatchSize <= 0 {
		return treeporterrors.New(treeporterrors.ErrorTypeConfig,
			"batch size must be positive")
	}

	return nil
}
