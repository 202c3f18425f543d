package server

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerValidatorsOnce sync.Once

// registerValidators adds the custom tags used by request structs to gin's
// binding engine.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(fieldName)
		_ = v.RegisterValidation("snowflake", validateSnowflake)
		_ = v.RegisterValidation("notblank", validateNotBlank)
	})
}

// fieldName reports fields by their wire name so errors match the request.
func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "uri", "form"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return fld.Name
}

func validateSnowflake(fl validator.FieldLevel) bool {
	id, err := snowflake.ParseString(strings.TrimSpace(fl.Field().String()))
	return err == nil && id > 0
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// bindingError turns validator failures into field-level validation errors.
func bindingError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalidRequestError()
	}
	out := &ValidationErrors{}
	for _, fe := range verrs {
		code := fe.Tag()
		message := "invalid value"
		switch code {
		case "required", "notblank":
			code = "required"
			message = "field is required"
		case "snowflake":
			code = "invalid_id"
			message = "must be a valid id"
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    code,
			Message: message,
		})
	}
	return out
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, newValidationError("id", "invalid_id", "must be a valid id")
	}
	return id, nil
}
