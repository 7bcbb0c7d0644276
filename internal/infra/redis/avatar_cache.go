package redis

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"iq-card-service/internal/avatar"
)

// AvatarCache stores inlined avatars as hashes:
// HSET avatar:{url} mime {mime} data {bytes}, expiring after ttl.
type AvatarCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvatarCache(client *redis.Client, ttl time.Duration) *AvatarCache {
	return &AvatarCache{client: client, ttl: ttl}
}

func (c *AvatarCache) Get(ctx context.Context, key string) (avatar.Image, bool) {
	fields, err := c.client.HGetAll(ctx, c.key(key)).Result()
	if err != nil || len(fields) == 0 {
		return avatar.Image{}, false
	}
	mime, data := fields["mime"], fields["data"]
	if mime == "" || data == "" {
		return avatar.Image{}, false
	}
	return avatar.Image{MIME: mime, Data: []byte(data)}, true
}

func (c *AvatarCache) Set(ctx context.Context, key string, img avatar.Image) {
	if c.ttl <= 0 {
		return
	}
	k := c.key(key)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, k, "mime", img.MIME, "data", img.Data)
	pipe.Expire(ctx, k, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("cache avatar %s: %v", key, err)
	}
}

func (c *AvatarCache) key(url string) string {
	return "avatar:" + url
}
