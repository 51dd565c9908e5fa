package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// Validate checks the validate tags of a request struct.
func Validate(v interface{}) error {
	return validate.Struct(v)
}

// Validate checks the request fields.
func (r *ChatRequest) Validate() error {
	return validate.Struct(r)
}
