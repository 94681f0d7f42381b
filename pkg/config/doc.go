// Package config provides a type-safe, generic way to load application
// configuration from environment variables.
//
// It wraps `github.com/joho/godotenv` and `github.com/caarlos0/env/v11` to
// deliver a small API that:
//
//   - Loads the default `.env` file from the current working directory once
//     per process (missing file is not an error).
//   - Parses the environment into any Go struct using `env` field tags.
//   - Exposes a panic-on-failure helper (`MustLoad`) for configuration the
//     application cannot start without.
//
// # Usage
//
// Create a struct describing your configuration and annotate its fields with
// `env` tags:
//
//	type DatabaseConfig struct {
//	    Host string `env:"DB_HOST,required"`
//	    Port int    `env:"DB_PORT" envDefault:"5432"`
//	}
//
// Then populate the struct:
//
//	var dbConfig DatabaseConfig
//	config.MustLoad(&dbConfig)
//
// Real environment variables always take precedence over values loaded from
// the `.env` file.
package config
