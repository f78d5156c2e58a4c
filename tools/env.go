package tools

import "os"

// GetenvDefault returns the value of key, or defaultValue when it is unset
// or empty.
func GetenvDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// EnvSet reports whether key holds a non-empty value.
func EnvSet(key string) bool {
	return os.Getenv(key) != ""
}
