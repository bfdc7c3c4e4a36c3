// Package config loads dbfixture configuration.
//
// It uses Viper to read a YAML file and the environment, with an optional
// .env file loaded through godotenv first. Environment variables map onto
// nested keys by underscores, so DATABASE_DSN sets database.dsn. With
// WithEnvPrefix("DBFIXTURE") only DBFIXTURE_* variables are considered and
// the prefix is stripped.
//
// # Usage
//
//	var cfg config.Config
//	if err := config.Load("dbfixture", &cfg); err != nil { ... }
//	cfg.ApplyDefaults()
//	if err := cfg.Validate(); err != nil { ... }
package config
