package services

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator"
)

var (
	phoneNumberRegex = regexp.MustCompile(`^[6-9]\d{9}$`)
	pinCodeRegex     = regexp.MustCompile(`^\d{6}$`)

	validate = newValidator()
)

// scheduledAtLayouts are tried in order. The SPA's datetime-local input sends
// the zoneless forms, which are read as UTC.
var scheduledAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their json names, e.g. "villageId" instead of "VillageID"
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	err := v.RegisterValidation("phone_number", func(fl validator.FieldLevel) bool {
		return phoneNumberRegex.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}

	err = v.RegisterValidation("pin_code", func(fl validator.FieldLevel) bool {
		return pinCodeRegex.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}

	err = v.RegisterValidation("time_stamp", func(fl validator.FieldLevel) bool {
		_, err := parseTimestamp(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(err)
	}

	return v
}

func parseTimestamp(value string) (time.Time, error) {
	var err error
	for _, layout := range scheduledAtLayouts {
		var t time.Time
		t, err = time.Parse(layout, strings.TrimSpace(value))
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// validateStruct returns a ValidationError describing the first violated field of 's'.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrors) == 0 {
		return invalid(err.Error())
	}

	return invalid(describe(fieldErrors[0].Field(), fieldErrors[0]))
}

// validateField checks a single value, reporting violations against 'name'.
func validateField(name string, value interface{}, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrors) == 0 {
		return invalid(err.Error())
	}

	return invalid(describe(name, fieldErrors[0]))
}

func describe(field string, fe validator.FieldError) string {
	isList := fe.Kind() == reflect.Slice || fe.Kind() == reflect.Array

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "min":
		if isList {
			return fmt.Sprintf("%q must contain at least %s items", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be greater than or equal to %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
		}
		return fmt.Sprintf("%q must be less than or equal to %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%q length must be %s characters long", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%q must be one of [%s]", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "phone_number", "pin_code", "numeric":
		return fmt.Sprintf("%q with value %q fails to match the required pattern", field, fmt.Sprint(fe.Value()))
	case "time_stamp":
		return fmt.Sprintf("%q must be a valid date", field)
	case "url":
		return fmt.Sprintf("%q must be a valid uri", field)
	}

	return fmt.Sprintf("%q is invalid", field)
}
