package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable is returned when the session backend cannot be reached.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionNotFound is returned when the session does not exist or its expiry clock has run out.
var ErrSessionNotFound = errors.New("session not found")

// ErrSkipWrite may be returned by a [Store.Mutate] callback to keep the
// stored record unchanged. Mutate then returns the loaded session and a nil error.
var ErrSkipWrite = errors.New("skip session write")

const (
	minKeyTTL        = time.Second
	maxMutateRetries = 4
)

const deleteSessionScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store. The Redis key TTL always mirrors
// the session's ExpiresAt so the key disappears when the expiry clock runs out.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ts"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) principalKey(principalID string) string {
	return s.prefix + "p:" + principalID
}

// Save persists a [Session] and indexes it under its principal.
//
//	Performance: 1 MULTI/EXEC (SET + SADD).
func (s *Store) Save(ctx context.Context, sess *Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	ttl := keyTTL(sess, time.Now())
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.principalKey(sess.PrincipalID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get loads a session without modifying it.
//
//	Performance: 1 Redis GET.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	sess.SessionID = sessionID
	if time.Now().Unix() >= sess.ExpiresAt {
		return nil, ErrSessionNotFound
	}

	return sess, nil
}

// Mutate applies fn to the stored session inside a WATCH/MULTI transaction
// and persists the result, retrying on concurrent modification. The key TTL
// follows the ExpiresAt value left by fn. Errors returned by fn abort the
// write and are returned unchanged, except [ErrSkipWrite].
//
//	Performance: WATCH + GET + MULTI/EXEC, bounded retries.
func (s *Store) Mutate(ctx context.Context, sessionID string, fn func(*Session) error) (*Session, error) {
	key := s.key(sessionID)

	for i := 0; i < maxMutateRetries; i++ {
		var (
			out   *Session
			fnErr error
		)
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			sess, err := Decode(data)
			if err != nil {
				return ErrSessionNotFound
			}
			sess.SessionID = sessionID

			now := time.Now()
			if now.Unix() >= sess.ExpiresAt {
				return ErrSessionNotFound
			}

			if err := fn(sess); err != nil {
				if errors.Is(err, ErrSkipWrite) {
					out = sess
					return nil
				}
				fnErr = err
				return err
			}

			updated, err := Encode(sess)
			if err != nil {
				fnErr = err
				return err
			}
			ttl := keyTTL(sess, now)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			out = sess
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if fnErr != nil {
			return nil, fnErr
		}
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, ErrSessionNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: session mutation contention", ErrRedisUnavailable)
}

// Delete removes a session and its principal index entry. Deleting a missing
// session is not an error.
//
//	Performance: 1 GET + 1 Lua EVALSHA.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil
	}

	return s.deleteSessionAndIndex(ctx, sess.PrincipalID, sessionID)
}

// DeleteAllForPrincipal removes every indexed session of a principal.
//
// Sessions created between the index read and the delete are not captured;
// they keep their own expiry clock.
func (s *Store) DeleteAllForPrincipal(ctx context.Context, principalID string) error {
	principalKey := s.principalKey(principalID)

	sessionIDs, err := s.ActiveSessionIDs(ctx, principalID)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sid := range sessionIDs {
			pipe.Del(ctx, s.key(sid))
		}
		pipe.Del(ctx, principalKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// ActiveSessionIDs returns the session IDs indexed for a principal. Entries
// may outlive their session until the next delete.
func (s *Store) ActiveSessionIDs(ctx context.Context, principalID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.principalKey(principalID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, principalID, sessionID string) error {
	keys := []string{s.key(sessionID), s.principalKey(principalID)}
	if _, err := deleteSessionLua.Run(ctx, s.redis, keys, sessionID).Result(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func keyTTL(sess *Session, now time.Time) time.Duration {
	ttl := time.Unix(sess.ExpiresAt, 0).Sub(now)
	if ttl < minKeyTTL {
		return minKeyTTL
	}
	return ttl
}
