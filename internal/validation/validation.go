// Package validation wraps go-playground/validator with the custom rules
// used by plugin definitions, saved graphs and the application config.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/specialistvlad/nodegrid/internal/node"
)

var (
	pinNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	semverPattern  = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(-[\w\.-]+)?(\+[\w\.-]+)?$`)
)

// validate is built lazily; validator.Validate caches struct metadata and
// is safe for concurrent use.
var validate = sync.OnceValue(newValidator)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	mustRegister(v, "pin_name", func(fl validator.FieldLevel) bool {
		return pinNamePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "semver", func(fl validator.FieldLevel) bool {
		return semverPattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "node_kind", func(fl validator.FieldLevel) bool {
		return node.Kind(fl.Field().String()).Valid()
	})

	// Report field names the way they appear in serialized documents.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: registering %q: %v", tag, err))
	}
}

// Error describes one invalid field.
type Error struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
}

// Errors is the list of problems found in one struct.
type Errors []Error

func (e Errors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Struct validates s against its `validate` tags. The returned error is
// an Errors value when the struct is invalid.
func Struct(s any) error {
	err := validate().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(Errors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, Error{
			Field:   fieldPath(fe),
			Value:   fe.Value(),
			Message: message(fe),
		})
	}
	return out
}

// fieldPath drops the top-level type name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "pin_name":
		return "must start with a letter or underscore and contain only letters, digits, underscores or hyphens"
	case "semver":
		return "must be a semantic version such as 1.2.3"
	case "node_kind":
		return "must be a known node type"
	case "unique":
		return "entries must be unique"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}
