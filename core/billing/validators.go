package billing

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/malipo/core"
)

var (
	// custom validation tags & texts
	currencyCodeTag   = "currencycode"
	currencyCodeText  = "must be a 3-letter currency code"
	currencyCodeRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)

	subscriptionStatusTag  = "subscriptionstatus"
	subscriptionStatusText = "invalid subscription status"

	sessionStatusTag  = "sessionstatus"
	sessionStatusText = "invalid session status"
)

// InitValidators registers the billing validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(currencyCodeTag, currencyCodeValidation)
	core.RegisterCustomTranslation(validate, translator, currencyCodeTag, currencyCodeText)

	_ = validate.RegisterValidation(subscriptionStatusTag, oneOfValidation(SubscriptionStatuses))
	core.RegisterCustomTranslation(validate, translator, subscriptionStatusTag, subscriptionStatusText)

	_ = validate.RegisterValidation(sessionStatusTag, oneOfValidation(SessionStatuses))
	core.RegisterCustomTranslation(validate, translator, sessionStatusTag, sessionStatusText)
}

func currencyCodeValidation(fl validator.FieldLevel) bool {
	return currencyCodeRegex.MatchString(fl.Field().String())
}

func oneOfValidation(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		for _, s := range allowed {
			if val == s {
				return true
			}
		}
		return false
	}
}
