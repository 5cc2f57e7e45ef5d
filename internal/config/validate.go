package config

import (
	"cloudxfer/internal/hostaddr"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cloudhost", func(fl validator.FieldLevel) bool {
		ok, norm := hostaddr.Validate(fl.Field().String())
		// Persisted hosts are always stored normalized.
		return ok && norm == fl.Field().String()
	})
	return v
}
