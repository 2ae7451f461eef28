package usage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "distill:usage:"

// RedisStore keeps one hash per (credential, resource) pair so several
// distill processes can share the same quota view.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects using a redis:// URL or a bare host:port address.
func NewRedisStore(ctx context.Context, dsn string) (*RedisStore, error) {
	var opts *redis.Options
	if strings.Contains(dsn, "://") {
		parsed, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		if dsn == "" {
			dsn = "localhost:6379"
		}
		opts = &redis.Options{Addr: dsn}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, credentialID, resourceID string) (Counter, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, redisKey(credentialID, resourceID)).Result()
	if err != nil {
		return Counter{}, false, fmt.Errorf("get usage: %w", err)
	}
	if len(fields) == 0 {
		return Counter{}, false, nil
	}
	c, err := fromHash(fields)
	if err != nil {
		return Counter{}, false, err
	}
	return c, true, nil
}

func (s *RedisStore) Upsert(ctx context.Context, c Counter) error {
	if err := s.rdb.HSet(ctx, redisKey(c.CredentialID, c.ResourceID), toHash(c)).Err(); err != nil {
		return fmt.Errorf("upsert usage: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Counter, error) {
	var (
		out    []Counter
		cursor uint64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		for _, key := range keys {
			fields, err := s.rdb.HGetAll(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("get usage %s: %w", key, err)
			}
			c, err := fromHash(fields)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sortCounters(out)
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func redisKey(credentialID, resourceID string) string {
	return redisKeyPrefix + credentialID + ":" + resourceID
}

func toHash(c Counter) map[string]any {
	return map[string]any{
		"credential_id":      c.CredentialID,
		"resource_id":        c.ResourceID,
		"window_start":       toMillis(c.WindowStart),
		"requests_in_window": c.RequestsInWindow,
		"tokens_in_window":   c.TokensInWindow,
		"day_stamp":          c.DayStamp,
		"requests_today":     c.RequestsToday,
	}
}

func fromHash(fields map[string]string) (Counter, error) {
	c := Counter{
		CredentialID: fields["credential_id"],
		ResourceID:   fields["resource_id"],
		DayStamp:     fields["day_stamp"],
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"requests_in_window", &c.RequestsInWindow},
		{"tokens_in_window", &c.TokensInWindow},
		{"requests_today", &c.RequestsToday},
	}
	for _, f := range ints {
		v, err := parseIntField(fields, f.name)
		if err != nil {
			return Counter{}, err
		}
		*f.dst = int(v)
	}

	ms, err := parseIntField(fields, "window_start")
	if err != nil {
		return Counter{}, err
	}
	c.WindowStart = fromMillis(ms)
	return c, nil
}

func parseIntField(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("usage field %s: %w", name, err)
	}
	return v, nil
}

var _ Store = (*RedisStore)(nil)
