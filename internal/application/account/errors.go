package account

import (
	"errors"

	"github.com/baechuer/account-service/internal/domain"
)

func asDomain(err error, target **domain.Error) bool {
	return errors.As(err, target)
}

func isNotFound(err error) bool {
	return domain.Is(err, "user_not_found")
}
