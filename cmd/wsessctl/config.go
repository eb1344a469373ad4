package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig provides defaults for flags left unset on the command line.
// Durations are strings in time.ParseDuration syntax.
type fileConfig struct {
	URL        string            `toml:"url"`
	Transport  string            `toml:"transport"`
	Protocols  string            `toml:"protocols"`
	Message    string            `toml:"message"`
	Count      int               `toml:"count"`
	Interval   string            `toml:"interval"`
	Attempts   int               `toml:"attempts"`
	RetryDelay string            `toml:"retry_delay"`
	Listen     string            `toml:"listen"`
	Headers    map[string]string `toml:"headers"`
}

// applyFileConfig overlays file values onto opts for every key present in
// the file whose flag was not set explicitly. Flag values win.
func applyFileConfig(opts *options, explicit map[string]bool, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load wsessctl config: %w", err)
	}

	if meta.IsDefined("url") && !explicit["url"] {
		opts.url = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("transport") && !explicit["transport"] {
		opts.transport = strings.TrimSpace(raw.Transport)
	}
	if meta.IsDefined("protocols") && !explicit["protocols"] {
		opts.protocols = raw.Protocols
	}
	if meta.IsDefined("message") && !explicit["message"] {
		opts.message = raw.Message
	}
	if meta.IsDefined("count") && !explicit["count"] {
		if raw.Count < 1 {
			return fmt.Errorf("count must be at least 1, got %d", raw.Count)
		}
		opts.count = raw.Count
	}
	if meta.IsDefined("interval") && !explicit["interval"] {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("parse interval: %w", err)
		}
		opts.interval = d
	}
	if meta.IsDefined("attempts") && !explicit["attempts"] {
		if raw.Attempts < 1 {
			return fmt.Errorf("attempts must be at least 1, got %d", raw.Attempts)
		}
		opts.attempts = uint(raw.Attempts)
	}
	if meta.IsDefined("retry_delay") && !explicit["retry-delay"] {
		d, err := time.ParseDuration(raw.RetryDelay)
		if err != nil {
			return fmt.Errorf("parse retry_delay: %w", err)
		}
		opts.retryDelay = d
	}
	if meta.IsDefined("listen") && !explicit["listen"] {
		d, err := time.ParseDuration(raw.Listen)
		if err != nil {
			return fmt.Errorf("parse listen: %w", err)
		}
		opts.listen = d
	}

	for name, value := range raw.Headers {
		if opts.headers.Get(name) == "" {
			opts.headers.Set(name, value)
		}
	}
	return nil
}
