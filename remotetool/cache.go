package remotetool

import (
	"sync"
	"time"

	"github.com/aether-frame/aether-frame/contracts"
)

// ttlCache holds the last successful discovery response for a fixed TTL, a
// lighter single-entry analogue of a toolset schema cache with background
// refresh.
type ttlCache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	tools     []contracts.UniversalTool
	expiresAt time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl}
}

func (c *ttlCache) get() ([]contracts.UniversalTool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tools == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.tools, true
}

func (c *ttlCache) set(tools []contracts.UniversalTool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = tools
	c.expiresAt = time.Now().Add(c.ttl)
}
