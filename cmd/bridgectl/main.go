// Command bridgectl bridges a websocket session onto an MQTT broker.
// Inbound messages publish to <prefix>/messages, lifecycle events to
// <prefix>/events, and payloads published to <prefix>/send go out over the
// session.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/wsess"
	"github.com/danmuck/wsess/coderws"
	"github.com/danmuck/wsess/gorillaws"
	"github.com/danmuck/wsess/internal/bridge"
	"github.com/danmuck/wsess/internal/logging"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a TOML config file")
	flag.Parse()

	logging.ConfigureRuntime()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "bridgectl: a -config file is required")
		os.Exit(1)
	}

	cfg, transport, err := loadBridgeConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}

	factory, err := transportFactory(transport)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := bridge.NewServiceWithConfig(cfg, factory)
	if err := svc.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "bridgectl: %v\n", err)
		os.Exit(1)
	}
}

func transportFactory(name string) (wsess.TransportFactory, error) {
	switch name {
	case "gorilla":
		return gorillaws.Factory(), nil
	case "coder":
		return coderws.Factory(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}
