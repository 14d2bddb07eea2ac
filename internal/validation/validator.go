// Package validation validates decoded request payloads with
// go-playground/validator and renders failures as API errors.
package validation

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/soillink/soillink/internal/apierr"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	personName = regexp.MustCompile(`^[A-Za-z\s]+$`)
)

// Get returns the shared validator. Field names in errors follow the
// json tags.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
			return personName.MatchString(fl.Field().String())
		})
		v.RegisterValidation("letternumber", func(fl validator.FieldLevel) bool {
			var letter, digit bool
			for _, r := range fl.Field().String() {
				letter = letter || unicode.IsLetter(r)
				digit = digit || unicode.IsDigit(r)
			}
			return letter && digit
		})
		validate = v
	})
	return validate
}

// Struct validates s and returns a message per failing field, or nil.
func Struct(s any) map[string]string {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = message(fe)
		}
	}
	return fields
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "Please provide a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("%s does not match %s", field, fe.Param())
	case "personname":
		return field + " can only contain letters and spaces"
	case "letternumber":
		return field + " must contain at least one letter and one number"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Decode reads a JSON body into dst and validates it. The returned error
// is ready to be written to the client.
func Decode(r *http.Request, dst any) *apierr.Error {
	if r.Body == nil {
		return apierr.ValidationInvalidJSON()
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apierr.ValidationInvalidFormat("Request body too large")
		}
		return apierr.ValidationInvalidJSON()
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apierr.ValidationInvalidJSON()
	}
	if fields := Struct(dst); fields != nil {
		return apierr.ValidationFailed(fields)
	}
	return nil
}
