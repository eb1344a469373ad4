package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/wsess/internal/echo"
	"github.com/danmuck/wsess/internal/logging"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a TOML config file")
	flag.Parse()

	logging.ConfigureRuntime()

	svc := echo.NewService()
	if configPath != "" {
		cfg, err := loadServerConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "echod: %v\n", err)
			os.Exit(1)
		}
		svc = echo.NewServiceWithConfig(cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "echod: %v\n", err)
		os.Exit(1)
	}
}
