package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/wsess/internal/bridge"
)

const defaultTransport = "gorilla"

type fileConfig struct {
	ID           string   `toml:"id"`
	Address      string   `toml:"address"`
	Subprotocols []string `toml:"subprotocols"`
	Transport    string   `toml:"transport"`
	Broker       string   `toml:"broker"`
	ClientID     string   `toml:"client_id"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	TopicPrefix  string   `toml:"topic_prefix"`
	QoS          int      `toml:"qos"`
	Retain       bool     `toml:"retain"`
}

func loadBridgeConfig(path string) (bridge.Config, string, error) {
	cfg := bridge.DefaultConfig()
	transport := defaultTransport

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return bridge.Config{}, "", fmt.Errorf("load bridgectl config: %w", err)
	}

	if meta.IsDefined("id") {
		id := strings.TrimSpace(raw.ID)
		if id != "" {
			cfg.ID = id
		}
	}

	cfg.Address = strings.TrimSpace(raw.Address)
	if cfg.Address == "" {
		return bridge.Config{}, "", fmt.Errorf("address is required")
	}

	if meta.IsDefined("subprotocols") {
		cfg.Subprotocols = normalizeList(raw.Subprotocols)
	}

	if meta.IsDefined("transport") {
		v := strings.TrimSpace(raw.Transport)
		if v != "gorilla" && v != "coder" {
			return bridge.Config{}, "", fmt.Errorf("transport must be gorilla or coder, got %q", v)
		}
		transport = v
	}

	if meta.IsDefined("broker") {
		b := strings.TrimSpace(raw.Broker)
		if b != "" {
			cfg.Broker = b
		}
	}

	if meta.IsDefined("client_id") {
		cfg.ClientID = strings.TrimSpace(raw.ClientID)
	}

	cfg.Username = raw.Username
	cfg.Password = raw.Password

	if meta.IsDefined("topic_prefix") {
		p := strings.Trim(strings.TrimSpace(raw.TopicPrefix), "/")
		if p == "" {
			return bridge.Config{}, "", fmt.Errorf("topic_prefix must not be empty")
		}
		cfg.TopicPrefix = p
	}

	if meta.IsDefined("qos") {
		if raw.QoS < 0 || raw.QoS > 2 {
			return bridge.Config{}, "", fmt.Errorf("qos must be 0, 1, or 2, got %d", raw.QoS)
		}
		cfg.QoS = byte(raw.QoS)
	}

	cfg.Retain = raw.Retain

	return cfg, transport, nil
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
