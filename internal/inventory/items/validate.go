package items

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the measuring_unit binding rule to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("measuring_unit", func(fl validator.FieldLevel) bool {
				return ValidUnit(fl.Field().String())
			})
		}
	})
}
