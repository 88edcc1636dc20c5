// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

// ruft-chat-server runs a room-based chat server over the RUFT transport.
//
// Usage:
//
//	ruft-chat-server [-config chat.yaml] [-listen :4600]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	ruft "github.com/ruftio/ruft-go"
	"github.com/ruftio/ruft-go/chat"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	listenAddr := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	if err := run(*configPath, *listenAddr); err != nil {
		fmt.Fprintln(os.Stderr, "ruft-chat-server:", err)
		os.Exit(1)
	}
}

func run(configPath, listenAddr string) error {
	cfg, err := chat.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr == "" {
		listenAddr = cfg.Listen
	}
	if listenAddr == "" {
		listenAddr = ":4600"
	}

	log, flush, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}
	defer flush()

	arqCfg, err := cfg.Transport.Arq()
	if err != nil {
		return err
	}

	l, err := ruft.Listen("ruft", listenAddr,
		ruft.WithLogger(log.WithName("ruft")),
		ruft.WithConfig(arqCfg),
	)
	if err != nil {
		return err
	}
	defer l.Close()
	log.Info("listening", "addr", l.Addr().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return chat.NewServer(log.WithName("chat")).Serve(ctx, l)
}
