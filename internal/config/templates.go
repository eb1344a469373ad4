// Package config ships starter TOML templates for the wsess binaries.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns the starter TOML for the named binary.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "echod":
		return echodTemplate, nil
	case "bridgectl":
		return bridgectlTemplate, nil
	case "wsessctl":
		return wsessctlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// Kinds lists the template names Template accepts.
func Kinds() []string {
	return []string{"echod", "bridgectl", "wsessctl"}
}

// WriteTemplate writes the starter config for kind to path. Existing files
// are preserved unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const echodTemplate = `id = "echod.local"
addr = ":8089"
socket_path = "/ws"
subprotocols = ["chat"]
cors_origins = ["http://localhost:3000"]
max_message_size = 1048576

# Uncomment to require "Authorization: Bearer <token>" on the socket route.
# auth_token = "change-me"
`

const bridgectlTemplate = `id = "bridge.local"
address = "ws://127.0.0.1:8089/ws"
subprotocols = ["chat"]
transport = "gorilla"

broker = "tcp://127.0.0.1:1883"
topic_prefix = "wsess"
qos = 0
retain = false

# client_id defaults to "<id>-<random suffix>"; credentials default to none.
# client_id = "bridge-1"
# username = ""
# password = ""
`

const wsessctlTemplate = `url = "ws://127.0.0.1:8089/ws"
transport = "gorilla"
protocols = "chat"
message = "hello"
count = 1
interval = "0s"
attempts = 3
retry_delay = "500ms"
listen = "2s"

[headers]
# Authorization = "Bearer change-me"
`
