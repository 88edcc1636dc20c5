// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

package ruft

import (
	"github.com/go-logr/logr"

	"github.com/ruftio/ruft-go/arq"
)

// ConnectOption adjusts the behavior of Dial or Listen.
type ConnectOption interface {
	apply(*connectOptions)
}

type connectOptions struct {
	logger  logr.Logger
	cfg     arq.Config
	backlog int
}

func defaultConnectOptions() connectOptions {
	return connectOptions{
		logger:  logr.Discard(),
		cfg:     arq.DefaultConfig(),
		backlog: defaultAcceptBacklog,
	}
}

type optionFunc func(*connectOptions)

func (f optionFunc) apply(o *connectOptions) { f(o) }

// WithLogger attaches a logger to the endpoint. Transport internals log
// under it at increasing V levels; nothing is logged by default.
func WithLogger(logger logr.Logger) ConnectOption {
	return optionFunc(func(o *connectOptions) { o.logger = logger })
}

// WithConfig overrides the transport tuning. Zero fields keep their
// defaults.
func WithConfig(cfg arq.Config) ConnectOption {
	return optionFunc(func(o *connectOptions) { o.cfg = cfg })
}

// WithAcceptBacklog sets how many completed inbound handshakes may queue
// before further connection attempts are rejected. Only meaningful for
// Listen.
func WithAcceptBacklog(n int) ConnectOption {
	return optionFunc(func(o *connectOptions) {
		if n > 0 {
			o.backlog = n
		}
	})
}
