package config

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/valyala/fasttemplate"

	"sd-address-tools/internal/engine"
)

var validate *validator.Validate

var templateTags = map[string]bool{
	engine.TmplAddress: true,
	engine.TmplSlug:    true,
	engine.TmplType:    true,
	engine.TmplDate:    true,
}

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("object_template", validateObjectTemplate); err != nil {
		panic(err)
	}
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		return v.Interface().(Duration).Duration
	}, Duration{})

	// Report fields by their TOML key
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validateObjectTemplate accepts empty strings and templates that only use
// the known placeholders.
func validateObjectTemplate(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	t, err := fasttemplate.NewTemplate(value, "{{", "}}")
	if err != nil {
		return false
	}
	_, err = t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		if !templateTags[tag] {
			return 0, fmt.Errorf("unknown placeholder %q", tag)
		}
		return 0, nil
	})
	return err == nil
}

// ValidationError is a single invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors collects every invalid value of a configuration.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("invalid configuration (%d error(s)):", len(ve)))
	for _, e := range ve {
		sb.WriteString(fmt.Sprintf("\n  %s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// Validate checks the configuration and returns ValidationErrors when
// anything is wrong.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(e.Namespace()),
			Message: validationMessage(e),
		})
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "url":
		return fmt.Sprintf("must be a valid URL, got %q", e.Value())
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "excludes":
		return fmt.Sprintf("must not contain %s", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "object_template":
		return fmt.Sprintf("must be a template using only {{%s}}, {{%s}}, {{%s}} or {{%s}}",
			engine.TmplAddress, engine.TmplSlug, engine.TmplType, engine.TmplDate)
	default:
		return fmt.Sprintf("failed %q validation", e.Tag())
	}
}
