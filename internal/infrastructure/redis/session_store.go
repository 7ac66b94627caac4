package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/domain"
)

// SessionStore keeps the per-session profile as JSON under sess:<id>. The key
// TTL is the session lifetime. user_sess:<user id> is a set of the user's
// session ids; members may outlive their session and are ignored then.
type SessionStore struct {
	rdb        *goredis.Client
	prefix     string
	userPrefix string
}

func NewSessionStore(c *Client) *SessionStore {
	var rdb *goredis.Client
	if c != nil {
		rdb = c.rdb
	}
	return &SessionStore{rdb: rdb, prefix: "sess:", userPrefix: "user_sess:"}
}

func (s *SessionStore) key(id string) string { return s.prefix + id }

func (s *SessionStore) userKey(userID string) string { return s.userPrefix + userID }

func (s *SessionStore) Put(ctx context.Context, sessionID string, p account.SessionProfile, ttl time.Duration) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ErrMissingField("session_id")
	}
	if s.rdb == nil {
		return domain.ErrRedisUnavailable(errors.New("redis session store not configured"))
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	b, err := json.Marshal(p)
	if err != nil {
		return domain.ErrInternal(err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionID), b, ttl)
		if p.UserID != "" {
			pipe.SAdd(ctx, s.userKey(p.UserID), sessionID)
			// every session shares the configured TTL, so the newest one
			// bounds the index
			pipe.Expire(ctx, s.userKey(p.UserID), ttl)
		}
		return nil
	})
	if err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (account.SessionProfile, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return account.SessionProfile{}, domain.ErrSessionNotFound()
	}
	if s.rdb == nil {
		return account.SessionProfile{}, domain.ErrRedisUnavailable(errors.New("redis session store not configured"))
	}

	raw, err := s.rdb.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return account.SessionProfile{}, domain.ErrSessionNotFound()
		}
		return account.SessionProfile{}, domain.ErrRedisUnavailable(err)
	}

	var p account.SessionProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		// unreadable entries are treated as gone
		_ = s.rdb.Del(ctx, s.key(sessionID)).Err()
		return account.SessionProfile{}, domain.ErrSessionNotFound()
	}
	return p, nil
}

// Delete is idempotent.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	if s.rdb == nil {
		return domain.ErrRedisUnavailable(errors.New("redis session store not configured"))
	}

	p, err := s.Get(ctx, sessionID)
	switch {
	case domain.Is(err, "session_not_found"):
		return nil
	case err != nil:
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		if p.UserID != "" {
			pipe.SRem(ctx, s.userKey(p.UserID), sessionID)
		}
		return nil
	})
	if err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}

// DeleteAllForUser drops every session indexed under userID.
func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	if s.rdb == nil {
		return domain.ErrRedisUnavailable(errors.New("redis session store not configured"))
	}

	ids, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return domain.ErrRedisUnavailable(err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, s.userKey(userID))

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return domain.ErrRedisUnavailable(err)
	}
	return nil
}
