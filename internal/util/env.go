// Package util provides small helpers shared across the concierge components.
package util

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ParseBoolEnv reads a boolean environment variable. It accepts
// true/1/yes/on and false/0/no/off regardless of case; anything else
// falls back to the default.
func ParseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return defaultValue
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	slog.Warn("ParseBoolEnv: unrecognized value, using default", "key", key, "value", raw, "default", defaultValue)
	return defaultValue
}

// ParseIntEnv reads an integer environment variable. Empty or malformed
// values fall back to the default.
func ParseIntEnv(key string, defaultValue int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ParseIntEnv: unrecognized value, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return n
}
