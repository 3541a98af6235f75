package drafts

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "draft:attempt:"

// RedisStore keeps each attempt's draft in a hash of question id -> option index.
// Every write refreshes the TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// Connect opens a client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "drafts: ping redis at %s", addr)
	}
	return rdb, nil
}

func (s *RedisStore) Put(ctx context.Context, attemptID, questionID string, optionIndex int) error {
	key := keyPrefix + attemptID
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, questionID, optionIndex)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	return errors.Wrap(err, "drafts: put")
}

func (s *RedisStore) Load(ctx context.Context, attemptID string) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, keyPrefix+attemptID).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "drafts: load")
	}
	out := make(map[string]int, len(raw))
	for qid, v := range raw {
		idx, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "drafts: bad option index for %s", qid)
		}
		out[qid] = idx
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, attemptID string) error {
	return errors.Wrap(s.rdb.Del(ctx, keyPrefix+attemptID).Err(), "drafts: delete")
}
