package memory

import (
	"context"
	"sort"

	"github.com/baechuer/account-service/internal/domain"
)

type RoleRepo struct{ s *Store }

func (r *RoleRepo) FindByName(ctx context.Context, name string) (domain.Role, error) {
	defer r.s.lock(ctx)()

	id, ok := r.s.roleByName[name]
	if !ok {
		return domain.Role{}, domain.ErrRoleNotFound(name)
	}
	return r.s.roles[id], nil
}

func (r *RoleRepo) AssignToUser(ctx context.Context, userID, roleID string) error {
	defer r.s.lock(ctx)()

	u, ok := r.s.users[userID]
	if !ok {
		return domain.ErrUserNotFound()
	}
	if _, ok := r.s.roles[roleID]; !ok {
		return domain.ErrRoleNotFound(roleID)
	}
	set := r.s.userRoles[userID]
	if set == nil {
		set = map[string]struct{}{}
		r.s.userRoles[userID] = set
	}
	set[roleID] = struct{}{}

	u.RoleIDs = roleIDs(set)
	r.s.users[userID] = u
	return nil
}

func (r *RoleRepo) RemoveAllFromUser(ctx context.Context, userID string) error {
	defer r.s.lock(ctx)()

	delete(r.s.userRoles, userID)
	if u, ok := r.s.users[userID]; ok {
		u.RoleIDs = nil
		r.s.users[userID] = u
	}
	return nil
}

func (r *RoleRepo) ListForUser(ctx context.Context, userID string) ([]domain.Role, error) {
	defer r.s.lock(ctx)()

	out := make([]domain.Role, 0, len(r.s.userRoles[userID]))
	for id := range r.s.userRoles[userID] {
		out = append(out, r.s.roles[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
