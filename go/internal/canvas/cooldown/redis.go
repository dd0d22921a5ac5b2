package cooldown

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/pixelplace/go/internal/canvas"
	"github.com/mcdev12/pixelplace/go/internal/models"
)

const keyPrefix = "canvas:cooldown:"

// releaseScript deletes the key only while it still holds the claimed value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRepository keeps the last placement time per (session, user) in Redis.
// Entries expire once the cooldown window has passed, since nothing reads
// them afterwards.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

func NewRedisRepository(client *redis.Client, window time.Duration) *RedisRepository {
	return &RedisRepository{
		client: client,
		ttl:    window,
	}
}

func redisKey(sessionID uuid.UUID, fid int64) string {
	return keyPrefix + sessionID.String() + ":" + strconv.FormatInt(fid, 10)
}

func (r *RedisRepository) Get(ctx context.Context, sessionID uuid.UUID, fid int64) (*models.CooldownEntry, error) {
	val, err := r.client.Get(ctx, redisKey(sessionID, fid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, canvas.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cooldown: %w", err)
	}
	nanos, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cooldown timestamp %q: %w", val, err)
	}
	return &models.CooldownEntry{
		FID:             fid,
		CanvasSessionID: sessionID,
		LastPixelTime:   time.Unix(0, nanos).UTC(),
	}, nil
}

func (r *RedisRepository) Upsert(ctx context.Context, entry models.CooldownEntry) error {
	key := redisKey(entry.CanvasSessionID, entry.FID)
	val := strconv.FormatInt(entry.LastPixelTime.UnixNano(), 10)
	if err := r.client.Set(ctx, key, val, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}

// Claim uses SET NX with the window as expiry: the key exists exactly while
// the user is cooling down.
func (r *RedisRepository) Claim(ctx context.Context, entry models.CooldownEntry, window time.Duration) (*models.CooldownEntry, bool, error) {
	key := redisKey(entry.CanvasSessionID, entry.FID)
	val := strconv.FormatInt(entry.LastPixelTime.UnixNano(), 10)

	ok, err := r.client.SetNX(ctx, key, val, window).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim cooldown: %w", err)
	}
	if ok {
		return &entry, true, nil
	}

	held, err := r.Get(ctx, entry.CanvasSessionID, entry.FID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return held, false, nil
}

func (r *RedisRepository) Release(ctx context.Context, entry models.CooldownEntry) error {
	key := redisKey(entry.CanvasSessionID, entry.FID)
	val := strconv.FormatInt(entry.LastPixelTime.UnixNano(), 10)
	if err := releaseScript.Run(ctx, r.client, []string{key}, val).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown: %w", err)
	}
	return nil
}
