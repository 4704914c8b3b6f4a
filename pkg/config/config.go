// Package config loads CLI/demo configuration from the environment.
// Grading semantics never come from here; methodology packs own those.
package config

import "os"

// Config holds engine process configuration.
type Config struct {
	LogLevel        string
	Environment     string
	MethodologyPack string // path to a methodology pack, empty = builtin
	OTLPEndpoint    string
	OTLPInsecure    bool
	TelemetryOn     bool
	// StrictMode makes the CLI exit non-zero when a graded claim
	// carries any defect, not only when grading fails closed.
	StrictMode bool
}

// Load reads configuration from environment variables with safe
// defaults.
func Load() *Config {
	logLevel := os.Getenv("SANAD_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	env := os.Getenv("SANAD_ENV")
	if env == "" {
		env = "development"
	}

	endpoint := os.Getenv("SANAD_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	return &Config{
		LogLevel:        logLevel,
		Environment:     env,
		MethodologyPack: os.Getenv("SANAD_METHODOLOGY_PACK"),
		OTLPEndpoint:    endpoint,
		OTLPInsecure:    os.Getenv("SANAD_OTLP_INSECURE") == "true",
		TelemetryOn:     os.Getenv("SANAD_TELEMETRY") == "true",
		StrictMode:      os.Getenv("SANAD_STRICT") == "true",
	}
}
