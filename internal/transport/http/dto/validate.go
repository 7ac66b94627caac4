package dto

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entrans "github.com/go-playground/validator/v10/translations/en"

	"github.com/baechuer/account-service/internal/domain"
)

// Validator checks request DTOs and reports the first failing field as a
// domain validation error with an English message.
type Validator struct {
	v     *validator.Validate
	trans ut.Translator
}

func NewValidator() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names, not Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("password_strength", passwordStrength); err != nil {
		return nil, err
	}

	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	if err := entrans.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, err
	}
	err := v.RegisterTranslation("password_strength", trans,
		func(t ut.Translator) error {
			return t.Add("password_strength", "{0} must contain an uppercase letter, a lowercase letter and a number", true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T("password_strength", fe.Field())
			return s
		},
	)
	if err != nil {
		return nil, err
	}

	return &Validator{v: v, trans: trans}, nil
}

func (v *Validator) Validate(req any) error {
	err := v.v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.ErrInvalidField("body", err.Error())
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return domain.ErrMissingField(fe.Field())
	case "password_strength", "min", "max":
		if fe.Field() == "password" || fe.Field() == "new_password" {
			return domain.ErrWeakPassword(fe.Translate(v.trans))
		}
	}
	return domain.ErrInvalidField(fe.Field(), fe.Translate(v.trans))
}

func passwordStrength(fl validator.FieldLevel) bool {
	var upper, lower, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsNumber(r):
			digit = true
		}
	}
	return upper && lower && digit
}
