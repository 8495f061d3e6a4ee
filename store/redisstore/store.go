// Package redisstore keeps remember-me series in Redis. Each series is a
// hash and every user has a set of its series, so logout can drop them
// all. Entries expire with the configured TTL.
package redisstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	remember "github.com/goliatone/go-remember"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "remember:"

var (
	_ remember.TokenStore   = (*Store)(nil)
	_ remember.TokenRotator = (*Store)(nil)
)

// createScript stores a new series unless it already exists.
// Returns 1 when created, 0 when the series is taken.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'username', ARGV[1], 'token', ARGV[2], 'last_used', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[4])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// rotateScript swaps the token when it still equals the presented one.
// Returns 1 on success, 0 for an unknown series, -1 on mismatch.
var rotateScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'token')
if not current then
	return 0
end
if current ~= ARGV[1] then
	return -1
end
redis.call('HSET', KEYS[1], 'token', ARGV[2], 'last_used', ARGV[3])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
	local username = redis.call('HGET', KEYS[1], 'username')
	if username then
		redis.call('PEXPIRE', KEYS[2] .. username, ttl)
	end
end
return 1
`)

type Option func(*Store)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires entries ttl after their last use. Zero keeps them
// until removed.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

type Store struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewStore(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		rdb:    rdb,
		prefix: DefaultPrefix,
		ttl:    remember.DefaultTokenValidity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) seriesKey(series string) string {
	return s.prefix + "series:" + series
}

func (s *Store) userPrefix() string {
	return s.prefix + "user:"
}

func (s *Store) userKey(username string) string {
	return s.userPrefix() + username
}

func (s *Store) CreateNewToken(ctx context.Context, token remember.PersistentToken) error {
	if strings.TrimSpace(token.Series) == "" || strings.TrimSpace(token.Username) == "" {
		return errors.New("redisstore: series and username are required", errors.CategoryBadInput)
	}
	created, err := createScript.Run(ctx, s.rdb,
		[]string{s.seriesKey(token.Series), s.userKey(token.Username)},
		token.Username, token.Token, strconv.FormatInt(token.LastUsed.UnixMilli(), 10), token.Series, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "redisstore: create series")
	}
	if created == 0 {
		return errors.New("redisstore: series already exists", errors.CategoryConflict).
			WithMetadata(map[string]any{"series": token.Series})
	}
	return nil
}

func (s *Store) GetTokenForSeries(ctx context.Context, series string) (remember.PersistentToken, bool, error) {
	values, err := s.rdb.HGetAll(ctx, s.seriesKey(series)).Result()
	if err == redis.Nil {
		return remember.PersistentToken{}, false, nil
	}
	if err != nil {
		return remember.PersistentToken{}, false, errors.Wrap(err, errors.CategoryInternal, "redisstore: load series")
	}
	if len(values) == 0 {
		return remember.PersistentToken{}, false, nil
	}

	millis, err := strconv.ParseInt(values["last_used"], 10, 64)
	if err != nil {
		return remember.PersistentToken{}, false, errors.Wrap(err, errors.CategoryInternal, "redisstore: corrupt last_used").
			WithMetadata(map[string]any{"series": series})
	}
	return remember.PersistentToken{
		Username: values["username"],
		Series:   series,
		Token:    values["token"],
		LastUsed: time.UnixMilli(millis),
	}, true, nil
}

func (s *Store) UpdateToken(ctx context.Context, series, tokenValue string, lastUsed time.Time) error {
	key := s.seriesKey(series)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "redisstore: update series")
	}
	if exists == 0 {
		return nil
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "token", tokenValue, "last_used", strconv.FormatInt(lastUsed.UnixMilli(), 10))
		if s.ttl > 0 {
			pipe.PExpire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "redisstore: update series")
	}
	return nil
}

// RotateToken replaces the token only while it still equals presented
func (s *Store) RotateToken(ctx context.Context, series, presented, next string, lastUsed time.Time) error {
	result, err := rotateScript.Run(ctx, s.rdb,
		[]string{s.seriesKey(series), s.userPrefix()},
		presented, next, strconv.FormatInt(lastUsed.UnixMilli(), 10), s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "redisstore: rotate series")
	}
	switch result {
	case 1:
		return nil
	case 0:
		return remember.ErrSeriesNotFound
	default:
		return remember.ErrTokenMismatch
	}
}

func (s *Store) RemoveSeries(ctx context.Context, series string) error {
	key := s.seriesKey(series)
	username, err := s.rdb.HGet(ctx, key, "username").Result()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.CategoryInternal, "redisstore: remove series")
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if username != "" {
			pipe.SRem(ctx, s.userKey(username), series)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "redisstore: remove series")
	}
	return nil
}

func (s *Store) RemoveUserTokens(ctx context.Context, username string) error {
	userKey := s.userKey(username)
	series, err := s.rdb.SMembers(ctx, userKey).Result()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.CategoryInternal, "redisstore: list user series")
	}
	keys := make([]string, 0, len(series)+1)
	for _, id := range series {
		keys = append(keys, s.seriesKey(id))
	}
	keys = append(keys, userKey)
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "redisstore: remove user series")
	}
	return nil
}
