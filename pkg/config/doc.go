// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
//	type AppConfig struct {
//		Port int `env:"PORT" envDefault:"8080"`
//	}
//
//	cfg, err := config.Load[AppConfig]()
//
// Load parses struct tags via caarlos0/env. LoadEnv reads .env files once
// per process before any parsing happens; missing files are not an error.
package config
