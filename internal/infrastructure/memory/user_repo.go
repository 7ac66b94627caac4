package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/baechuer/account-service/internal/domain"
)

type UserRepo struct{ s *Store }

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	defer r.s.lock(ctx)()

	id, ok := r.s.byEmail[normEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.s.users[id].Clone(), nil
}

// FindByEmailForUpdate is FindByEmail: the store lock already serialises the
// surrounding transaction.
func (r *UserRepo) FindByEmailForUpdate(ctx context.Context, email string) (domain.User, error) {
	return r.FindByEmail(ctx, email)
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (domain.User, error) {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return u.Clone(), nil
}

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	defer r.s.lock(ctx)()

	u.Email = normEmail(u.Email)
	if u.ID == "" {
		return domain.User{}, domain.ErrMissingField("id")
	}
	if u.Email == "" {
		return domain.User{}, domain.ErrMissingField("email")
	}
	if _, exists := r.s.byEmail[u.Email]; exists {
		return domain.User{}, domain.ErrEmailAlreadyExists()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	u.RoleIDs = roleIDs(r.s.userRoles[u.ID])

	r.s.users[u.ID] = u.Clone()
	r.s.byEmail[u.Email] = u.ID
	return u.Clone(), nil
}

func (r *UserRepo) Update(ctx context.Context, u domain.User) (domain.User, error) {
	defer r.s.lock(ctx)()

	prev, ok := r.s.users[u.ID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	u.Email = normEmail(u.Email)
	if u.Email != prev.Email {
		if _, taken := r.s.byEmail[u.Email]; taken {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		delete(r.s.byEmail, prev.Email)
		r.s.byEmail[u.Email] = u.ID
	}
	// role ids are owned by the association records
	u.RoleIDs = roleIDs(r.s.userRoles[u.ID])
	r.s.users[u.ID] = u.Clone()
	return u.Clone(), nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	delete(r.s.users, id)
	delete(r.s.byEmail, u.Email)
	return nil
}

func roleIDs(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
