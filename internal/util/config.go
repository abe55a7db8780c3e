package util

import (
	"time"

	"github.com/OFFIS-RIT/amtcalc/pkg/common"
)

// RequiredEnv must be set for the server and the worker to start.
var RequiredEnv = []string{"DATABASE_URL", "NAME_GENERATOR_URL"}

// Config is the runtime configuration shared by the server and the worker.
type Config struct {
	Debug           bool
	LogFormat       string
	Port            string
	ShutdownTimeout time.Duration
	LockTTL         time.Duration

	DatabaseURL    string
	MigrationsPath string

	SnowstormURL        string
	LanguageRefset      string
	NameGeneratorURL    string
	RepositoryRetries   int
	DefaultModuleID     string
	IdentifierSchemes   string
	CalcParallelNodes   int
	CalcMaxMatches      int
	CalcParallelLookups int
}

// LoadConfig reads the configuration from the environment. Call LoadEnv
// first to pick up a .env file.
func LoadConfig() Config {
	return Config{
		Debug:           GetEnvBool("DEBUG", false),
		LogFormat:       GetEnvString("LOG_FORMAT", "text"),
		Port:            GetEnvString("PORT", "8080"),
		ShutdownTimeout: GetEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LockTTL:         GetEnvDuration("MATERIALIZE_LOCK_TTL", 2*time.Minute),

		DatabaseURL:    GetEnv("DATABASE_URL"),
		MigrationsPath: GetEnvString("MIGRATIONS_PATH", "migrations"),

		SnowstormURL:        GetEnvString("SNOWSTORM_URL", "http://localhost:8080/snowstorm/snomed-ct"),
		LanguageRefset:      GetEnvString("SNOWSTORM_LANGUAGE_REFSET", "32570271000036106"),
		NameGeneratorURL:    GetEnv("NAME_GENERATOR_URL"),
		RepositoryRetries:   GetEnvInt("REPOSITORY_MAX_RETRIES", 3),
		DefaultModuleID:     GetEnvString("DEFAULT_MODULE_ID", common.DefaultModuleID),
		IdentifierSchemes:   GetEnvString("IDENTIFIER_SCHEMES", "ARTGID=11000168105"),
		CalcParallelNodes:   GetEnvInt("CALC_PARALLEL_NODES", 4),
		CalcMaxMatches:      GetEnvInt("CALC_MAX_MATCHES", 25),
		CalcParallelLookups: GetEnvInt("CALC_PARALLEL_LOOKUPS", 4),
	}
}
