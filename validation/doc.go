// Package validation validates configuration structs using go-playground
// validator tags and reports failures as *errors.AppError with per-field
// details.
//
//	type Config struct {
//	    DSN string `mapstructure:"dsn" validate:"required"`
//	}
//	if err := validation.Validate(cfg); err != nil { ... }
package validation
