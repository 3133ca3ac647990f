package ivr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "ivr:session:"

// RedisSessionStore keeps sessions in Redis as JSON. Every Save refreshes the
// key's TTL, so a session expires ttl after the caller's last interaction.
type RedisSessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionStore(rdb redis.Cmdable, ttl time.Duration) *RedisSessionStore {
	if rdb == nil {
		panic("ivr: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(callID string) string {
	return sessionKeyPrefix + callID
}

func (s *RedisSessionStore) Get(ctx context.Context, callID string) (*CallSession, error) {
	data, err := s.rdb.Get(ctx, sessionKey(callID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("ivr: session get: %w", err)
	}
	var sess CallSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("ivr: session unmarshal: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *CallSession) error {
	if sess == nil || sess.CallID == "" {
		return fmt.Errorf("ivr: session save: call id required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("ivr: session marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sess.CallID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("ivr: session save: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, callID string) error {
	if err := s.rdb.Del(ctx, sessionKey(callID)).Err(); err != nil {
		return fmt.Errorf("ivr: session delete: %w", err)
	}
	return nil
}
