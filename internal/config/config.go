// Package config loads the ecatprobe configuration using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/WangJhone/ecat"
	"github.com/WangJhone/ecat/internal/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// MaxProcessLength is the largest process image which shares a frame with
// the 8 byte distributed clock datagram of an LRWDC transfer.
const MaxProcessLength = ecat.BufferSize - ecat.FrameOverhead - 2*ecat.DatagramOverhead - 8

// EnvPrefix prefixes environment variable overrides, e.g. ECATPROBE_LOG_LEVEL.
const EnvPrefix = "ECATPROBE"

// Config is the ecatprobe configuration.
type Config struct {
	// Interface is the network interface connected to the segment.
	Interface string `mapstructure:"interface" yaml:"interface"`

	// Timeout is the round trip timeout of a single transfer.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Trace, if set, is the path of a pcap file receiving all frames.
	Trace string `mapstructure:"trace" yaml:"trace"`

	Log     logging.Config `mapstructure:"log" yaml:"log"`
	DC      DCConfig       `mapstructure:"dc" yaml:"dc"`
	Process ProcessConfig  `mapstructure:"process" yaml:"process"`
}

// DCConfig configures the distributed clock.
type DCConfig struct {
	// Reference is the station address of the reference clock slave.
	Reference uint16 `mapstructure:"reference" yaml:"reference"`
}

// ProcessConfig describes the process image exchanged by cyclic LRWDC
// transfers.
type ProcessConfig struct {
	LogicalAddress uint32        `mapstructure:"logical_address" yaml:"logical_address"`
	Length         int           `mapstructure:"length" yaml:"length"`
	Period         time.Duration `mapstructure:"period" yaml:"period"`
}

// flagKeys maps configuration keys to the command line flags overriding
// them.
var flagKeys = map[string]string{
	"interface": "interface",
	"timeout":   "timeout",
	"trace":     "trace",
	"log.level": "log-level",
}

// Load loads the configuration from the YAML file at path, if path is not
// empty.  Environment variables override the file, and flags in fs which
// were set override both.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if fs != nil {
		for key, name := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("interface", "eth0")
	v.SetDefault("timeout", ecat.SafeTimeout)
	v.SetDefault("trace", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "/var/log/ecatprobe/ecatprobe.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("dc.reference", 0x1001)

	// Process image defaults
	v.SetDefault("process.logical_address", 0x00010000)
	v.SetDefault("process.length", 0)
	v.SetDefault("process.period", time.Millisecond)
}

// Validate checks the configuration for values no transfer can be issued
// with.
func (cfg *Config) Validate() error {
	if err := cfg.Log.Validate(); err != nil {
		return err
	}

	if cfg.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s (must be positive)", cfg.Timeout)
	}

	if limit := MaxProcessLength; cfg.Process.Length < 0 || cfg.Process.Length > limit {
		return fmt.Errorf("invalid process.length: %d (must be 0..%d)", cfg.Process.Length, limit)
	}
	if cfg.Process.Period <= 0 {
		return fmt.Errorf("invalid process.period: %s (must be positive)", cfg.Process.Period)
	}

	return nil
}
