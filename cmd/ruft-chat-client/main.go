// Copyright (C) 2026 the ruft-go authors.
// See LICENSE for copying information.

// ruft-chat-client connects to a ruft-chat-server and runs an interactive
// session on the terminal.
//
// Usage:
//
//	ruft-chat-client [-config chat.yaml] [-server host:4600] [-nick name]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	ruft "github.com/ruftio/ruft-go"
	"github.com/ruftio/ruft-go/chat"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	serverAddr := flag.String("server", "", "server address (overrides config)")
	nick := flag.String("nick", "", "nickname to register on connect")
	flag.Parse()

	if err := run(*configPath, *serverAddr, *nick); err != nil {
		fmt.Fprintln(os.Stderr, "ruft-chat-client:", err)
		os.Exit(1)
	}
}

func run(configPath, serverAddr, nick string) error {
	cfg, err := chat.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if serverAddr == "" {
		serverAddr = cfg.Server
	}
	if serverAddr == "" {
		serverAddr = "127.0.0.1:4600"
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

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := ruft.Dial(dialCtx, "ruft", serverAddr,
		ruft.WithLogger(log.WithName("ruft")),
		ruft.WithConfig(arqCfg),
	)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Printf("connected to %s as connection %d\n", conn.RemoteAddr(), conn.ConnID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := chat.NewClient(log.WithName("chat"), conn, os.Stdout)
	if nick != "" {
		if err := conn.Send([]byte(chat.VerbNick + " " + nick + "\n")); err != nil {
			return err
		}
	}
	return client.Run(ctx, os.Stdin)
}
