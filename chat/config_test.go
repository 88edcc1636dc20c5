// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package chat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruftio/ruft-go/arq"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":5000"
transport:
  max_payload: 800
  window_size: 64
  min_rto: 100ms
  idle_timeout: 2m
log:
  level: debug
  file: /var/log/chat.log
  max_size_mb: 10
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/var/log/chat.log", cfg.Log.File)

	arqCfg, err := cfg.Transport.Arq()
	require.NoError(t, err)
	assert.Equal(t, 800, arqCfg.MaxPayload)
	assert.Equal(t, 64, arqCfg.WindowSize)
	assert.Equal(t, 100*time.Millisecond, arqCfg.MinRTO)
	assert.Equal(t, 2*time.Minute, arqCfg.IdleTimeout)
	// untouched fields keep their defaults
	assert.Equal(t, arq.DefaultConfig().MaxRetries, arqCfg.MaxRetries)
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	arqCfg, err := cfg.Transport.Arq()
	require.NoError(t, err)
	assert.Equal(t, arq.DefaultConfig(), arqCfg)
}

func TestTransportConfigBadDuration(t *testing.T) {
	_, err := TransportConfig{MinRTO: "soon"}.Arq()
	assert.Error(t, err)
}
