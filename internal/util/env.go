package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/OFFIS-RIT/amtcalc/pkg/logger"

	"github.com/joho/godotenv"
)

// LoadEnv loads ENV_FILE, or .env when it is unset, into the process
// environment. Variables already set are not overridden.
func LoadEnv() {
	file := GetEnvString("ENV_FILE", ".env")
	if err := godotenv.Load(file); err != nil {
		logger.Debug("No env file found, using system environment variables", "file", file)
	}
}

// MissingEnv returns the keys that are unset or blank.
func MissingEnv(keys ...string) []string {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(GetEnv(key)) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func GetEnv(key string) string {
	return os.Getenv(key)
}

func GetEnvString(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

// GetEnvInt parses key as a base 10 integer.
func GetEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}

// GetEnvDuration parses key with time.ParseDuration, e.g. "90s" or "2m".
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func GetEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return b
}
