// Package validate wraps the go-playground validator engine with the tags
// used by request parameters across the service.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validatorengine "github.com/go-playground/validator/v10"
	"github.com/npezzotti/go-echoes/internal/apperr"
	"github.com/npezzotti/go-echoes/internal/types"
)

type Validator struct {
	engine *validatorengine.Validate
}

// New returns a validator with the custom "notblank", "mood" and "bgcolor"
// tags registered. Empty mood and bgcolor values pass; callers apply defaults.
func New() *Validator {
	engine := validatorengine.New()
	engine.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})

	engine.RegisterValidation("notblank", func(fl validatorengine.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	engine.RegisterValidation("mood", func(fl validatorengine.FieldLevel) bool {
		m := fl.Field().String()
		return m == "" || types.IsMood(m)
	})
	engine.RegisterValidation("bgcolor", func(fl validatorengine.FieldLevel) bool {
		c := fl.Field().String()
		return c == "" || types.IsBackgroundColor(c)
	})

	return &Validator{engine: engine}
}

// Var reports whether value satisfies the validator tag expression.
func (v *Validator) Var(value any, tag string) bool {
	return v.engine.Var(value, tag) == nil
}

// Struct validates s and returns an *apperr.Error of kind validation whose
// Fields map names every failing field and the tag it failed.
func (v *Validator) Struct(s any) error {
	err := v.engine.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validatorengine.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(apperr.CodeInvalidInput, err.Error())
	}

	fields := make(map[string]string, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
		msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
	}

	verr := apperr.Validation(codeFor(verrs[0]), strings.Join(msgs, ", "))
	verr.Fields = fields
	return verr
}

func codeFor(fe validatorengine.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return apperr.CodeEmptyContent
	case "mood":
		return apperr.CodeInvalidMood
	case "bgcolor":
		return apperr.CodeInvalidColor
	default:
		return apperr.CodeInvalidInput
	}
}

// FailedField reports whether err is a validation error naming field, and
// the tag that failed.
func FailedField(err error, field string) (string, bool) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Fields == nil {
		return "", false
	}

	tag, ok := appErr.Fields[field]
	return tag, ok
}
