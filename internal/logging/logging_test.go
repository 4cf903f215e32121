package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "text", cfg: Config{Level: "info", Format: "text"}},
		{name: "json debug", cfg: Config{Level: "debug", Format: "json"}},
		{name: "unknown level", cfg: Config{Level: "verbose", Format: "text"}, wantErr: true},
		{name: "unknown format", cfg: Config{Level: "info", Format: "xml"}, wantErr: true},
		{
			name:    "file without path",
			cfg:     Config{Level: "info", Format: "text", File: FileConfig{Enabled: true}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l, c, err := New(Config{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l.Info("suppressed")
	l.WithField("wkc", 3).Warn("low work counter")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "low work counter", entry["msg"])
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, float64(3), entry["wkc"])
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecatprobe.log")

	var buf bytes.Buffer
	l, c, err := New(Config{
		Level:  "info",
		Format: "text",
		File: FileConfig{
			Enabled:   true,
			Path:      path,
			MaxSizeMB: 1,
		},
	}, &buf)
	require.NoError(t, err)

	l.Info("slaves found")
	require.NoError(t, c.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "slaves found")
	assert.Contains(t, buf.String(), "slaves found")
}

func TestNewInvalid(t *testing.T) {
	_, _, err := New(Config{Level: "info", Format: "yaml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
