package memory

import (
	"context"
	"sync"
	"time"

	"iq-card-service/internal/avatar"
)

// AvatarCache keeps inlined avatars in process for ttl.
type AvatarCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedAvatar
}

type cachedAvatar struct {
	img       avatar.Image
	expiresAt time.Time
}

func NewAvatarCache(ttl time.Duration) *AvatarCache {
	return &AvatarCache{ttl: ttl, clock: time.Now, entries: make(map[string]cachedAvatar)}
}

func (c *AvatarCache) Get(_ context.Context, key string) (avatar.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return avatar.Image{}, false
	}
	return entry.img, true
}

func (c *AvatarCache) Set(_ context.Context, key string, img avatar.Image) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	for k, entry := range c.entries {
		if !entry.expiresAt.After(now) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cachedAvatar{img: img, expiresAt: now.Add(c.ttl)}
}
