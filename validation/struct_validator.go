package validation

import (
	stderrors "errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm/schema"

	"github.com/kbukum/dbfixture/errors"
)

// FieldError is one failed rule, keyed by the field's config path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var (
	naming = schema.NamingStrategy{}

	instance = sync.OnceValue(func() *validator.Validate {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(configKey)
		return v
	})
)

// configKey names fields by their mapstructure key so messages match the
// YAML the user wrote. Untagged fields fall back to snake case.
func configKey(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
	if name == "" || name == "-" {
		return toSnakeCase(f.Name)
	}
	return name
}

func toSnakeCase(s string) string { return naming.ColumnName("", s) }

// Validate checks s against its `validate` tags. Failures come back as an
// invalid-input *errors.AppError listing every field in Details["fields"].
func Validate(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Validation("validation failed").WithCause(err)
	}

	fields := make([]FieldError, len(verrs))
	msgs := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = FieldError{Field: path(e), Message: describe(e)}
		msgs[i] = fields[i].Field + ": " + fields[i].Message
	}

	appErr := errors.Validation(strings.Join(msgs, "; "))
	appErr.Details = map[string]any{"fields": fields}
	return appErr
}

// path drops the root struct name: "Config.database.dsn" becomes "database.dsn".
func path(e validator.FieldError) string {
	if _, rest, ok := strings.Cut(e.Namespace(), "."); ok {
		return rest
	}
	return e.Field()
}

var messages = map[string]string{
	"required": "is required",
	"min":      "must be at least %s",
	"gte":      "must be at least %s",
	"max":      "must be at most %s",
	"lte":      "must be at most %s",
	"oneof":    "must be one of: %s",
	"ltefield": "must not exceed %s",
}

func describe(e validator.FieldError) string {
	msg, ok := messages[e.Tag()]
	if !ok {
		return "is invalid"
	}
	return strings.Replace(msg, "%s", e.Param(), 1)
}
