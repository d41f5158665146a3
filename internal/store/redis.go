package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lessucettes/adresu-automod/internal/config"
)

const redisPrefix = "automod/"

// RedisStore shares ledgers between several bot processes. Writes use
// WATCH/MULTI so concurrent read-modify-write cycles on one ledger retry
// instead of overwriting each other.
type RedisStore struct {
	Client *redis.Client
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{Client: rdb}, nil
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getLedger(ctx context.Context, c getter, key string) (Ledger, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l Ledger
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", key, err)
	}
	return l, nil
}

// mutate loads the ledger under WATCH, applies fn and writes the result back
// when fn reports a change.
func (s *RedisStore) mutate(ctx context.Context, key string, fn func(Ledger) (Ledger, bool, error)) error {
	txf := func(tx *redis.Tx) error {
		l, err := getLedger(ctx, tx, key)
		if err != nil {
			return err
		}
		next, changed, err := fn(l)
		if err != nil || !changed {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.Client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *RedisStore) AppendWarning(ctx context.Context, guildID, userID string, rec WarningRecord) error {
	return s.mutate(ctx, redisPrefix+warningKey(guildID, userID), func(l Ledger) (Ledger, bool, error) {
		return append(l, rec), true, nil
	})
}

func (s *RedisStore) Warnings(ctx context.Context, guildID, userID string) ([]WarningRecord, error) {
	return getLedger(ctx, s.Client, redisPrefix+warningKey(guildID, userID))
}

func (s *RedisStore) CountActive(ctx context.Context, guildID, userID string) (int, error) {
	l, err := getLedger(ctx, s.Client, redisPrefix+warningKey(guildID, userID))
	if err != nil {
		return 0, err
	}
	return l.Active(), nil
}

func (s *RedisStore) ClearWarning(ctx context.Context, guildID, userID, recordID string, info ClearInfo) (WarningRecord, error) {
	var cleared WarningRecord
	err := s.mutate(ctx, redisPrefix+warningKey(guildID, userID), func(l Ledger) (Ledger, bool, error) {
		var err error
		cleared, err = l.Clear(recordID, info)
		return l, err == nil, err
	})
	return cleared, err
}

func (s *RedisStore) ClearAll(ctx context.Context, guildID, userID string, info ClearInfo) (int, error) {
	var n int
	err := s.mutate(ctx, redisPrefix+warningKey(guildID, userID), func(l Ledger) (Ledger, bool, error) {
		n = l.ClearAll(info)
		return l, n > 0, nil
	})
	return n, err
}

func (s *RedisStore) GuildOverrides(ctx context.Context, guildID string) (*config.GuildOverrides, error) {
	raw, err := s.Client.Get(ctx, redisPrefix+guildPrefix+guildID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o := &config.GuildOverrides{}
	if err := json.Unmarshal(raw, o); err != nil {
		return nil, fmt.Errorf("decode guild overrides %s: %w", guildID, err)
	}
	return o, nil
}

func (s *RedisStore) PutGuildOverrides(ctx context.Context, guildID string, o config.GuildOverrides) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, redisPrefix+guildPrefix+guildID, raw, 0).Err()
}
