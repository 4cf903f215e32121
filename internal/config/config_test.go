package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/WangJhone/ecat"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ecatprobe.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Interface)
	assert.Equal(t, ecat.SafeTimeout, cfg.Timeout)
	assert.Equal(t, "", cfg.Trace)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Log.File.Enabled)
	assert.Equal(t, 100, cfg.Log.File.MaxSizeMB)
	assert.Equal(t, uint16(0x1001), cfg.DC.Reference)
	assert.Equal(t, uint32(0x00010000), cfg.Process.LogicalAddress)
	assert.Equal(t, time.Millisecond, cfg.Process.Period)
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
interface: enp3s0
timeout: 5ms
trace: /tmp/ecat.pcap
log:
  level: debug
  format: json
  file:
    enabled: true
    path: /tmp/ecatprobe.log
    max_backups: 2
dc:
  reference: 4098
process:
  logical_address: 131072
  length: 64
  period: 500us
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "enp3s0", cfg.Interface)
	assert.Equal(t, 5*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "/tmp/ecat.pcap", cfg.Trace)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Log.File.Enabled)
	assert.Equal(t, "/tmp/ecatprobe.log", cfg.Log.File.Path)
	assert.Equal(t, 2, cfg.Log.File.MaxBackups)
	assert.Equal(t, 30, cfg.Log.File.MaxAgeDays)
	assert.Equal(t, uint16(0x1002), cfg.DC.Reference)
	assert.Equal(t, uint32(0x00020000), cfg.Process.LogicalAddress)
	assert.Equal(t, 64, cfg.Process.Length)
	assert.Equal(t, 500*time.Microsecond, cfg.Process.Period)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
interface: enp3s0
log:
  level: info
`)

	t.Setenv("ECATPROBE_INTERFACE", "eth1")
	t.Setenv("ECATPROBE_LOG_LEVEL", "warn")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "eth1", cfg.Interface)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadFlagOverride(t *testing.T) {
	path := writeConfig(t, `
interface: enp3s0
timeout: 5ms
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("interface", "", "")
	fs.Duration("timeout", 0, "")
	fs.String("log-level", "", "")
	require.NoError(t, fs.Parse([]string{"--timeout=10ms", "--log-level=error"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	// Unset flags leave the file in effect
	assert.Equal(t, "enp3s0", cfg.Interface)
	assert.Equal(t, 10*time.Millisecond, cfg.Timeout)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"), nil)
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "log level", content: "log:\n  level: loud\n"},
		{name: "log format", content: "log:\n  format: xml\n"},
		{name: "empty interface", content: "interface: \"\"\n"},
		{name: "zero timeout", content: "timeout: 0s\n"},
		{name: "process image too large", content: "process:\n  length: 1471\n"},
		{name: "negative process length", content: "process:\n  length: -1\n"},
		{name: "zero period", content: "process:\n  period: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), nil)
			assert.Error(t, err)
		})
	}
}

func TestValidateLargestProcessImage(t *testing.T) {
	cfg, err := Load(writeConfig(t, "process:\n  length: 1470\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1470, cfg.Process.Length)
}

func TestMaxProcessLength(t *testing.T) {
	// 1518 byte buffer less Ethernet and frame headers, and the LRW and
	// FRMW datagram overheads with 8 bytes of clock data
	assert.Equal(t, 1518-14-2-12-12-8, MaxProcessLength)
}
