// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/todosite/todosite/internal/auth"
)

// Key layout:
//
//	session:<tokenHash>         JSON session record, expires with the session
//	session:id:<sessionID>      token hash, same expiry
//	user:sessions:<userID>      set of session IDs, expires with the latest session
//
// Members of the per-user set may outlive their sessions; readers skip them.
const (
	tokenKeyPrefix = "session:"
	idKeyPrefix    = "session:id:"
	userKeyPrefix  = "user:sessions:"
)

func tokenKey(tokenHash string) string { return tokenKeyPrefix + tokenHash }
func idKey(id ulid.ULID) string        { return idKeyPrefix + id.String() }
func userKey(userID ulid.ULID) string  { return userKeyPrefix + userID.String() }

// extendExpiry raises the PTTL of KEYS[1] to ARGV[1] milliseconds unless it
// already lives longer. Returns 1 when the expiry changed.
var extendExpiry = redis.NewScript(`
local current = redis.call('PTTL', KEYS[1])
local want = tonumber(ARGV[1])
if current >= 0 and current >= want then
  return 0
end
redis.call('PEXPIRE', KEYS[1], want)
return 1
`)

// sessionRecord is the stored JSON form of auth.Session.
type sessionRecord struct {
	ID         ulid.ULID `json:"id"`
	UserID     ulid.ULID `json:"user_id"`
	Username   string    `json:"username"`
	TokenHash  string    `json:"token_hash"`
	AuthHash   string    `json:"auth_hash"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func toRecord(s *auth.Session) sessionRecord {
	return sessionRecord{
		ID:         s.ID,
		UserID:     s.UserID,
		Username:   s.Username,
		TokenHash:  s.TokenHash,
		AuthHash:   s.AuthHash,
		UserAgent:  s.UserAgent,
		IPAddress:  s.IPAddress,
		ExpiresAt:  s.ExpiresAt,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
	}
}

func (r sessionRecord) session() *auth.Session {
	return &auth.Session{
		ID:         r.ID,
		UserID:     r.UserID,
		Username:   r.Username,
		TokenHash:  r.TokenHash,
		AuthHash:   r.AuthHash,
		UserAgent:  r.UserAgent,
		IPAddress:  r.IPAddress,
		ExpiresAt:  r.ExpiresAt,
		CreatedAt:  r.CreatedAt,
		LastSeenAt: r.LastSeenAt,
	}
}

// SessionRepository implements auth.SessionRepository on Redis.
type SessionRepository struct {
	rdb redis.Cmdable
	now func() time.Time
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(rdb redis.Cmdable) *SessionRepository {
	return &SessionRepository{rdb: rdb, now: time.Now}
}

// Create stores a session until its ExpiresAt.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").
			With("session_id", session.ID.String()).
			Errorf("session already expired at %s", session.ExpiresAt.Format(time.RFC3339))
	}

	payload, err := json.Marshal(toRecord(session))
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").With("operation", "marshal session").Wrap(err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, tokenKey(session.TokenHash), payload, ttl)
	pipe.Set(ctx, idKey(session.ID), session.TokenHash, ttl)
	pipe.SAdd(ctx, userKey(session.UserID), session.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("session_id", session.ID.String()).
			With("user_id", session.UserID.String()).
			Wrap(err)
	}

	if err := extendExpiry.Run(ctx, r.rdb, []string{userKey(session.UserID)}, ttl.Milliseconds()).Err(); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "extend user session index").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	rec, err := r.load(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	return rec.session(), nil
}

func (r *SessionRepository) load(ctx context.Context, tokenHash string) (*sessionRecord, error) {
	data, err := r.rdb.Get(ctx, tokenKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_FAILED").With("operation", "get session").Wrap(err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("SESSION_CORRUPT").With("operation", "unmarshal session").Wrap(err)
	}
	return &rec, nil
}

func (r *SessionRepository) tokenHashByID(ctx context.Context, id ulid.ULID) (string, error) {
	tokenHash, err := r.rdb.Get(ctx, idKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", oops.Code("SESSION_NOT_FOUND").
			With("session_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return "", oops.Code("SESSION_GET_FAILED").
			With("operation", "get session index").
			With("session_id", id.String()).
			Wrap(err)
	}
	return tokenHash, nil
}

// UpdateLastSeen records activity on a session without extending it.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	tokenHash, err := r.tokenHashByID(ctx, id)
	if err != nil {
		return err
	}
	rec, err := r.load(ctx, tokenHash)
	if err != nil {
		return err
	}

	rec.LastSeenAt = lastSeen
	payload, err := json.Marshal(rec)
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").With("operation", "marshal session").Wrap(err)
	}

	// SET XX KEEPTTL: never resurrects an expired session or changes its expiry.
	updated, err := r.rdb.SetXX(ctx, tokenKey(tokenHash), payload, redis.KeepTTL).Result()
	if err != nil {
		return oops.Code("SESSION_UPDATE_FAILED").
			With("operation", "update last seen").
			With("session_id", id.String()).
			Wrap(err)
	}
	if !updated {
		return oops.Code("SESSION_NOT_FOUND").
			With("session_id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tokenHash, err := r.tokenHashByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, tokenKey(tokenHash), idKey(id))
	if rec, err := r.load(ctx, tokenHash); err == nil {
		pipe.SRem(ctx, userKey(rec.UserID), id.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("session_id", id.String()).
			Wrap(err)
	}
	return nil
}

// DeleteByUser removes every session of a user. Deleting for a user with no
// sessions succeeds.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	members, err := r.rdb.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "list user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	keys := []string{userKey(userID)}
	if len(members) > 0 {
		idKeys := make([]string, len(members))
		for i, m := range members {
			idKeys[i] = idKeyPrefix + m
		}
		hashes, err := r.rdb.MGet(ctx, idKeys...).Result()
		if err != nil {
			return oops.Code("SESSION_DELETE_FAILED").
				With("operation", "resolve user sessions").
				With("user_id", userID.String()).
				Wrap(err)
		}
		keys = append(keys, idKeys...)
		for _, h := range hashes {
			if tokenHash, ok := h.(string); ok {
				keys = append(keys, tokenKey(tokenHash))
			}
		}
	}

	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}
