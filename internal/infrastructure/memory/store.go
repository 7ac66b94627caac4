package memory

import (
	"context"
	"sync"

	"github.com/baechuer/account-service/internal/domain"
)

// Store is an in-process Credential + Token + Audit store. A single mutex
// serialises transactions; WithinTx snapshots state and restores it when fn
// fails, which gives all-or-nothing semantics.
type Store struct {
	mu sync.Mutex

	users      map[string]domain.User // id -> user
	byEmail    map[string]string      // email -> id
	roles      map[string]domain.Role // id -> role
	roleByName map[string]string      // name -> id
	privileges map[string]domain.Privilege
	userRoles  map[string]map[string]struct{} // userID -> set(roleID)
	tokens     map[domain.TokenKind]map[string]domain.Token
	audit      []domain.AuditEvent
}

type txKey struct{ s *Store }

func NewStore() *Store {
	s := &Store{
		users:      map[string]domain.User{},
		byEmail:    map[string]string{},
		roles:      map[string]domain.Role{},
		roleByName: map[string]string{},
		privileges: map[string]domain.Privilege{},
		userRoles:  map[string]map[string]struct{}{},
		tokens:     map[domain.TokenKind]map[string]domain.Token{},
	}
	for _, k := range domain.AllTokenKinds {
		s.tokens[k] = map[string]domain.Token{}
	}
	return s
}

func (s *Store) Users() *UserRepo   { return &UserRepo{s: s} }
func (s *Store) Roles() *RoleRepo   { return &RoleRepo{s: s} }
func (s *Store) Tokens() *TokenRepo { return &TokenRepo{s: s} }
func (s *Store) Audit() *AuditRepo  { return &AuditRepo{s: s} }

// WithinTx runs fn under the store lock. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{s}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool)
	return v
}

// lock takes the store mutex unless ctx already owns it through WithinTx.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	users      map[string]domain.User
	byEmail    map[string]string
	roles      map[string]domain.Role
	roleByName map[string]string
	userRoles  map[string]map[string]struct{}
	tokens     map[domain.TokenKind]map[string]domain.Token
	auditLen   int
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		users:      make(map[string]domain.User, len(s.users)),
		byEmail:    make(map[string]string, len(s.byEmail)),
		roles:      make(map[string]domain.Role, len(s.roles)),
		roleByName: make(map[string]string, len(s.roleByName)),
		userRoles:  make(map[string]map[string]struct{}, len(s.userRoles)),
		tokens:     make(map[domain.TokenKind]map[string]domain.Token, len(s.tokens)),
		auditLen:   len(s.audit),
	}
	for k, v := range s.users {
		snap.users[k] = v.Clone()
	}
	for k, v := range s.byEmail {
		snap.byEmail[k] = v
	}
	for k, v := range s.roles {
		snap.roles[k] = v
	}
	for k, v := range s.roleByName {
		snap.roleByName[k] = v
	}
	for uid, set := range s.userRoles {
		cp := make(map[string]struct{}, len(set))
		for rid := range set {
			cp[rid] = struct{}{}
		}
		snap.userRoles[uid] = cp
	}
	for kind, m := range s.tokens {
		cp := make(map[string]domain.Token, len(m))
		for k, v := range m {
			cp[k] = v
		}
		snap.tokens[kind] = cp
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.byEmail = snap.byEmail
	s.roles = snap.roles
	s.roleByName = snap.roleByName
	s.userRoles = snap.userRoles
	s.tokens = snap.tokens
	s.audit = s.audit[:snap.auditLen]
}

// SeedRoles installs the default roles and privileges. Safe to call repeatedly.
func (s *Store) SeedRoles() {
	s.mu.Lock()
	defer s.mu.Unlock()

	read := domain.Privilege{ID: "priv-read", Name: domain.PrivilegeRead, Description: "read access"}
	write := domain.Privilege{ID: "priv-write", Name: domain.PrivilegeWrite, Description: "write access"}
	s.privileges[read.ID] = read
	s.privileges[write.ID] = write

	for _, r := range []domain.Role{
		{ID: "role-user", Name: domain.RoleUser, PrivilegeIDs: []string{read.ID}},
		{ID: "role-admin", Name: domain.RoleAdmin, PrivilegeIDs: []string{read.ID, write.ID}},
	} {
		if _, ok := s.roleByName[r.Name]; ok {
			continue
		}
		s.roles[r.ID] = r
		s.roleByName[r.Name] = r.ID
	}
}
