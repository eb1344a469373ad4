package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/wsess/internal/echo"
)

type fileConfig struct {
	ID             string   `toml:"id"`
	Addr           string   `toml:"addr"`
	SocketPath     string   `toml:"socket_path"`
	Subprotocols   []string `toml:"subprotocols"`
	CORSOrigins    []string `toml:"cors_origins"`
	MaxMessageSize int64    `toml:"max_message_size"`
	AuthToken      string   `toml:"auth_token"`
}

func loadServerConfig(path string) (echo.ServerConfig, error) {
	cfg := echo.DefaultServerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return echo.ServerConfig{}, fmt.Errorf("load echod config: %w", err)
	}

	if meta.IsDefined("id") {
		id := strings.TrimSpace(raw.ID)
		if id != "" {
			cfg.ID = id
		}
	}

	if meta.IsDefined("addr") {
		addr := strings.TrimSpace(raw.Addr)
		if addr != "" {
			cfg.Addr = addr
		}
	}

	if meta.IsDefined("socket_path") {
		p := strings.TrimSpace(raw.SocketPath)
		if p != "" {
			if !strings.HasPrefix(p, "/") {
				return echo.ServerConfig{}, fmt.Errorf("socket_path must start with /, got %q", p)
			}
			cfg.SocketPath = p
		}
	}

	if meta.IsDefined("subprotocols") {
		cfg.Subprotocols = normalizeList(raw.Subprotocols)
	}

	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}

	if meta.IsDefined("max_message_size") {
		if raw.MaxMessageSize <= 0 {
			return echo.ServerConfig{}, fmt.Errorf("max_message_size must be positive, got %d", raw.MaxMessageSize)
		}
		cfg.MaxMessageSize = raw.MaxMessageSize
	}

	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}

	return cfg, nil
}

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(in))
	for _, entry := range in {
		v := strings.TrimSpace(entry)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
