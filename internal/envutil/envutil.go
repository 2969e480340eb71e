// Package envutil provides small environment-variable convenience
// helpers in the style of the teacher's catalystcommunity/app-utils-go
// env package, adapted locally since that module is the teacher's own
// internal library rather than something fetchable from the public
// ecosystem for a standalone repo.
package envutil

import (
	"os"
	"strconv"
	"strings"
)

// GetOrDefault returns the environment variable value, or def if unset.
func GetOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// GetBoolOrDefault parses the environment variable as a bool, falling
// back to def on error or if unset.
func GetBoolOrDefault(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// GetIntOrDefault parses the environment variable as an int, falling
// back to def on error or if unset.
func GetIntOrDefault(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// GetInt64OrDefault parses the environment variable as an int64, falling
// back to def on error or if unset.
func GetInt64OrDefault(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def
	}
	return n
}
