// Package utils holds the environment parsing helpers shared by the
// configuration layer. Every helper falls back to its default on a
// missing or unparseable value rather than failing the boot.
package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvAsInt reads an integer environment variable.
func GetEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

// GetEnvAsFloat reads a float64 environment variable.
func GetEnvAsFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fallback
	}
	return f
}

// GetEnvAsBool reads a boolean environment variable. Accepts the usual
// spellings in either case: 1/0, t/f, true/false, yes/no, on/off.
func GetEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	}
	return fallback
}

// GetEnvAsSlice reads a comma-separated environment variable.
// Elements are trimmed and empty ones dropped.
func GetEnvAsSlice(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// GetEnvAsDuration reads an integer environment variable scaled by
// unit, so a value of 50 with unit time.Millisecond yields 50ms.
func GetEnvAsDuration(key string, fallback time.Duration, unit time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return time.Duration(n) * unit
}
