package app

import (
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/talkincode/chatgate/internal/domain"
)

const configCacheTTL = 30 * time.Second

type cachedValue struct {
	value    string
	found    bool
	loadedAt time.Time
}

// ConfigManager reads runtime tunables from the settings table with a short
// in-process cache, so hot paths do not hit the database on every lookup.
type ConfigManager struct {
	app   *Application
	mu    sync.RWMutex
	cache map[string]cachedValue
}

func NewConfigManager(a *Application) *ConfigManager {
	return &ConfigManager{app: a, cache: make(map[string]cachedValue)}
}

func (c *ConfigManager) load(category, name string) string {
	value, _ := c.Lookup(category, name)
	return value
}

// Lookup returns the stored value and whether the row exists, so callers can
// tell an explicit zero or empty value apart from a missing setting.
func (c *ConfigManager) Lookup(category, name string) (string, bool) {
	key := category + "." + name

	c.mu.RLock()
	cv, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Since(cv.loadedAt) < configCacheTTL {
		return cv.value, cv.found
	}

	var cfg domain.SysConfig
	value := ""
	found := false
	if err := c.app.gormDB.Where("type = ? and name = ?", category, name).First(&cfg).Error; err == nil {
		value = cfg.Value
		found = true
	}

	c.mu.Lock()
	c.cache[key] = cachedValue{value: value, found: found, loadedAt: time.Now()}
	c.mu.Unlock()
	return value, found
}

// Invalidate drops a cached entry so the next read hits the database.
func (c *ConfigManager) Invalidate(category, name string) {
	c.mu.Lock()
	delete(c.cache, category+"."+name)
	c.mu.Unlock()
}

func (c *ConfigManager) GetString(category, name string) string {
	return c.load(category, name)
}

func (c *ConfigManager) GetInt64(category, name string) int64 {
	return cast.ToInt64(c.load(category, name))
}

func (c *ConfigManager) GetInt(category, name string) int {
	return cast.ToInt(c.load(category, name))
}

func (c *ConfigManager) GetBool(category, name string) bool {
	return cast.ToBool(c.load(category, name))
}
