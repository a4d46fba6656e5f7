package api

import (
	"regexp"
	"sync"

	"pulse-server/internal/common/validation"
	"pulse-server/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	localePattern = regexp.MustCompile(validation.LocalePattern)
	regionPattern = regexp.MustCompile(`^[A-Z]{2}$`)
	registerOnce  sync.Once
)

func stringValidator(ok func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return ok(fl.Field().String())
	}
}

// RegisterValidators adds the domain tags to gin's validator engine.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("channel", stringValidator(func(s string) bool { return models.Channel(s).Valid() }))
		_ = v.RegisterValidation("provider", stringValidator(func(s string) bool { return models.ServiceProvider(s).Valid() }))
		_ = v.RegisterValidation("message_type", stringValidator(func(s string) bool { return models.MessageType(s).Valid() }))
		_ = v.RegisterValidation("priority", stringValidator(func(s string) bool { return models.Priority(s).Valid() }))
		_ = v.RegisterValidation("locale", stringValidator(localePattern.MatchString))
		_ = v.RegisterValidation("region", stringValidator(regionPattern.MatchString))
	})
}
