package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/domain"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestValidate_Register(t *testing.T) {
	v := newValidator(t)

	assert.NoError(t, v.Validate(RegisterRequest{Email: "a@b.com", Password: "Secret123"}))

	cases := []struct {
		name  string
		req   RegisterRequest
		code  string
		field string
	}{
		{"missing email", RegisterRequest{Password: "Secret123"}, "missing_field", "email"},
		{"bad email", RegisterRequest{Email: "nope", Password: "Secret123"}, "invalid_field", "email"},
		{"short password", RegisterRequest{Email: "a@b.com", Password: "Se1"}, "weak_password", ""},
		{"no digit", RegisterRequest{Email: "a@b.com", Password: "SecretSecret"}, "weak_password", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.req)
			require.Error(t, err)
			assert.True(t, domain.Is(err, tc.code), "got %v", err)

			var de *domain.Error
			require.ErrorAs(t, err, &de)
			if tc.field != "" {
				assert.Equal(t, tc.field, de.Meta["field"])
			}
		})
	}
}

func TestValidate_TranslatedMessages(t *testing.T) {
	v := newValidator(t)

	err := v.Validate(EmailRequest{Email: "nope"})
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "email must be a valid email address", de.Meta["reason"])

	err = v.Validate(ChangePasswordRequest{OldPassword: "x", NewPassword: "alllowercase1"})
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "weak_password", de.Code)
	assert.Contains(t, de.Meta["reason"], "new_password must contain")
}

func TestNewAccountData(t *testing.T) {
	u := domain.User{ID: "u1", Email: "a@b.com", Enabled: true}

	d := NewAccountData(u, nil)
	assert.Nil(t, d.Tokens)
	assert.Equal(t, "u1", d.User.ID)

	d = NewAccountData(u, &account.AuthSession{AccessToken: "t", TokenType: "Bearer", ExpiresIn: 900})
	require.NotNil(t, d.Tokens)
	assert.Equal(t, int64(900), d.Tokens.ExpiresIn)
}
