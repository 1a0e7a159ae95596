package core

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	fr_translations "github.com/go-playground/validator/v10/translations/fr"
)

var (
	draftValidator  *validator.Validate
	draftTranslator ut.Translator
)

func init() {
	draftValidator = validator.New(validator.WithRequiredStructEnabled())

	_fr := fr.New()
	uni := ut.New(_fr, _fr)
	draftTranslator, _ = uni.GetTranslator("fr")
	_ = fr_translations.RegisterDefaultTranslations(draftValidator, draftTranslator)

	// Report JSON names so messages read like the payload.
	draftValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidEmail applies the same rule as the guardian draft's email tag.
func ValidEmail(s string) bool {
	return draftValidator.Var(strings.TrimSpace(s), "email") == nil
}

// validateDraft checks a draft's struct tags and returns the translated
// field errors joined into one error.
func validateDraft(draft any) error {
	err := draftValidator.Struct(draft)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fe.Translate(draftTranslator)
	}
	return errors.New(strings.Join(msgs, "; "))
}
