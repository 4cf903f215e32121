// Package logging builds the logrus logger used by the ecatprobe command.
package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures a logger.
type Config struct {
	Level  string     `mapstructure:"level" yaml:"level"`
	Format string     `mapstructure:"format" yaml:"format"`
	File   FileConfig `mapstructure:"file" yaml:"file"`
}

// FileConfig configures an additional, rotated log file.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Validate checks that cfg names a known level and format.
func (cfg Config) Validate() error {
	if _, err := logrus.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	if cfg.Format != "json" && cfg.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Format)
	}
	if cfg.File.Enabled && cfg.File.Path == "" {
		return fmt.Errorf("log.file.path is required when log.file.enabled=true")
	}

	return nil
}

// New creates a logger writing to w and, if enabled, to a rotated file.
// The returned io.Closer releases the file.
func New(cfg Config, w io.Writer) (*logrus.Logger, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	l := logrus.New()

	level, _ := logrus.ParseLevel(cfg.Level)
	l.SetLevel(level)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			DisableColors:    cfg.File.Enabled,
			QuoteEmptyFields: true,
		})
	}

	var c io.Closer = nopCloser{}
	if cfg.File.Enabled {
		f := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,  // megabytes
			MaxBackups: cfg.File.MaxBackups, // number of backups
			MaxAge:     cfg.File.MaxAgeDays, // days
			Compress:   cfg.File.Compress,
		}
		w = io.MultiWriter(w, f)
		c = f
	}
	l.SetOutput(w)

	return l, c, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
