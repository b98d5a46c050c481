// Package config handles loading, parsing, and validating application
// configuration from environment variables and config files. It centralizes
// every tunable the engine exposes so the rest of the codebase receives a
// validated Config rather than reading the environment directly.
package config
