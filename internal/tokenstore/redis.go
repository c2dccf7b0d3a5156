package tokenstore

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/newsdesk/console/internal/domain"
	redisclient "github.com/newsdesk/console/internal/redis"
)

// redisKeyPrefix namespaces token keys: newsdesk:tokens:{clientID}:{key}.
const redisKeyPrefix = "newsdesk:tokens:"

// RedisStore keeps one client's pair under two Redis keys. A zero TTL keeps
// the keys until Clear.
type RedisStore struct {
	cmd      redisclient.Cmdable
	clientID string
	ttl      time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore for clientID.
func NewRedisStore(cmd redisclient.Cmdable, clientID string, ttl time.Duration) *RedisStore {
	return &RedisStore{cmd: cmd, clientID: clientID, ttl: ttl}
}

// RedisKey returns the Redis key holding name for clientID.
func RedisKey(clientID, name string) string {
	return redisKeyPrefix + clientID + ":" + name
}

// Save writes both keys in one pipeline.
func (s *RedisStore) Save(ctx context.Context, pair domain.CredentialPair) error {
	ctx, span := tracer.Start(ctx, "redis.tokens.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "SET"),
	)

	_, err := s.cmd.TxPipelined(ctx, func(p redisclient.Pipeliner) error {
		p.Set(ctx, RedisKey(s.clientID, domain.AccessTokenKey), pair.AccessToken.Expose(), s.ttl)
		p.Set(ctx, RedisKey(s.clientID, domain.RefreshTokenKey), pair.RefreshToken.Expose(), s.ttl)
		return nil
	})
	if err != nil {
		return failSpan(span, unavailable("save tokens", err))
	}
	return nil
}

// Clear deletes both keys.
func (s *RedisStore) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.tokens.clear")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "DEL"),
	)

	err := s.cmd.Del(ctx,
		RedisKey(s.clientID, domain.AccessTokenKey),
		RedisKey(s.clientID, domain.RefreshTokenKey),
	).Err()
	if err != nil {
		return failSpan(span, unavailable("clear tokens", err))
	}
	return nil
}

// AccessToken reads the access token key.
func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "redis.tokens.get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", "GET"),
	)

	token, err := s.cmd.Get(ctx, RedisKey(s.clientID, domain.AccessTokenKey)).Result()
	if errors.Is(err, redisclient.Nil) {
		return "", nil
	}
	if err != nil {
		return "", failSpan(span, unavailable("read access token", err))
	}
	return token, nil
}

func failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
