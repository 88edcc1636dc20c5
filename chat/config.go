// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package chat

import (
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/ruftio/ruft-go/arq"
)

// Config is the YAML configuration shared by the chat binaries. Unset
// fields keep their defaults.
type Config struct {
	// Listen is the server bind address; Server is the address the client
	// dials. Each binary reads the one it needs.
	Listen string `yaml:"listen"`
	Server string `yaml:"server"`

	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
}

// TransportConfig tunes the underlying transport. Durations are Go
// duration strings ("200ms", "1s").
type TransportConfig struct {
	MaxPayload  int    `yaml:"max_payload"`
	WindowSize  int    `yaml:"window_size"`
	MaxFlight   int    `yaml:"max_flight"`
	InitialRTO  string `yaml:"initial_rto"`
	MinRTO      string `yaml:"min_rto"`
	MaxRTO      string `yaml:"max_rto"`
	MaxRetries  int    `yaml:"max_retries"`
	IdleTimeout string `yaml:"idle_timeout"`
}

// LogConfig selects the log sink. With File set, output rotates there;
// otherwise it goes to stderr.
type LogConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoadConfig reads a YAML config file. A missing path yields the zero
// Config, so the binaries run without one.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "chat: read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "chat: parse config %s", path)
	}
	return cfg, nil
}

// Arq merges the transport section over the transport defaults.
func (t TransportConfig) Arq() (arq.Config, error) {
	cfg := arq.DefaultConfig()
	if t.MaxPayload > 0 {
		cfg.MaxPayload = t.MaxPayload
	}
	if t.WindowSize > 0 {
		cfg.WindowSize = t.WindowSize
	}
	if t.MaxFlight > 0 {
		cfg.MaxFlight = t.MaxFlight
	}
	if t.MaxRetries > 0 {
		cfg.MaxRetries = t.MaxRetries
	}
	for _, d := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{t.InitialRTO, "initial_rto", &cfg.InitialRTO},
		{t.MinRTO, "min_rto", &cfg.MinRTO},
		{t.MaxRTO, "max_rto", &cfg.MaxRTO},
		{t.IdleTimeout, "idle_timeout", &cfg.IdleTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return cfg, errors.Wrapf(err, "chat: transport.%s", d.name)
		}
		*d.dst = v
	}
	return cfg, nil
}

// NewLogger builds the process logger from the log section. The returned
// function flushes buffered entries; call it on shutdown.
func (l LogConfig) NewLogger() (logr.Logger, func(), error) {
	level := zapcore.InfoLevel
	if l.Level != "" {
		if err := level.Set(l.Level); err != nil {
			return logr.Logger{}, nil, errors.Wrapf(err, "chat: log level %q", l.Level)
		}
	}

	var sink zapcore.WriteSyncer
	if l.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAge:     l.MaxAgeDays,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)
	zl := zap.New(core)
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}
