package dto

import (
	"time"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/domain"
)

type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Enabled   bool      `json:"enabled"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
}

type TokensView struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// AccountData is returned by register, confirm and login. Tokens is absent
// when no session was established.
type AccountData struct {
	User   UserView    `json:"user"`
	Tokens *TokensView `json:"tokens,omitempty"`
}

type TokenStatusView struct {
	Status string `json:"status"`
}

type MessageView struct {
	Message string `json:"message"`
}

func NewUserView(u domain.User) UserView {
	return UserView{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Enabled:   u.Enabled,
		Locked:    u.Locked,
		CreatedAt: u.CreatedAt,
	}
}

func NewAccountData(u domain.User, s *account.AuthSession) AccountData {
	d := AccountData{User: NewUserView(u)}
	if s != nil {
		d.Tokens = &TokensView{
			AccessToken: s.AccessToken,
			TokenType:   s.TokenType,
			ExpiresIn:   s.ExpiresIn,
		}
	}
	return d
}
