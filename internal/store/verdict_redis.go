package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/local/pdfvalidator/internal/verdict"
)

// RedisVerdicts caches finished classifications in Redis hashes.
type RedisVerdicts struct {
	client *redis.Client
	keyNS  string
}

func NewRedisVerdicts(redisURL string) (*RedisVerdicts, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &RedisVerdicts{client: c, keyNS: "verdict"}, nil
}

func (s *RedisVerdicts) key(k string) string { return fmt.Sprintf("%s:%s", s.keyNS, k) }

// Set stores r under k for ttl (no expiry when ttl <= 0).
func (s *RedisVerdicts) Set(ctx context.Context, k string, r verdict.Result, ttl time.Duration) error {
	m := encodeResult(r)
	key := s.key(k)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, m)
		if ttl > 0 {
			p.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// Get returns the cached result and whether it was present.
func (s *RedisVerdicts) Get(ctx context.Context, k string) (verdict.Result, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(k)).Result()
	if err != nil {
		return verdict.Result{}, false, err
	}
	if len(res) == 0 {
		return verdict.Result{}, false, nil
	}
	r, ok := decodeResult(res)
	return r, ok, nil
}

func (s *RedisVerdicts) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisVerdicts) Close() error { return s.client.Close() }

func encodeResult(r verdict.Result) map[string]interface{} {
	return map[string]interface{}{
		"verdict":       r.Verdict.String(),
		"strategy":      r.Strategy,
		"total_pages":   r.TotalPages,
		"pages_checked": r.PagesChecked,
		"blank_page":    r.BlankPage,
		"scale":         strconv.FormatFloat(r.Scale, 'f', -1, 64),
	}
}

// decodeResult rejects entries without a recognised verdict so a corrupt
// hash is treated as a miss.
func decodeResult(m map[string]string) (verdict.Result, bool) {
	r := verdict.Result{Strategy: m["strategy"]}
	switch m["verdict"] {
	case verdict.Valid.String():
		r.Verdict = verdict.Valid
	case verdict.Invalid.String():
		r.Verdict = verdict.Invalid
	default:
		return verdict.Result{}, false
	}
	r.TotalPages, _ = strconv.Atoi(m["total_pages"])
	r.PagesChecked, _ = strconv.Atoi(m["pages_checked"])
	r.BlankPage, _ = strconv.Atoi(m["blank_page"])
	r.Scale, _ = strconv.ParseFloat(m["scale"], 64)
	return r, true
}
