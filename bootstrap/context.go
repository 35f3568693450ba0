package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"marketrouter/config"
)

// Context carries the loaded configuration and lets hooks share data (such
// as constructed service instances) with hooks that run at a later
// priority.
type Context struct {
	Config *config.Config
	Data   map[string]interface{}
	ctx    context.Context
	mu     sync.RWMutex
}

// NewContext creates a fresh initialization context for cfg.
func NewContext(cfg *config.Config) *Context {
	return &Context{
		Config: cfg,
		Data:   make(map[string]interface{}),
		ctx:    context.Background(),
	}
}

// Set stores a value under key for later hooks to retrieve.
func (c *Context) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Data[key] = value
}

// Get retrieves a value stored under key.
func (c *Context) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.Data[key]
	return val, ok
}

// MustGet retrieves a value stored under key, panicking if absent.
func (c *Context) MustGet(key string) interface{} {
	val, ok := c.Get(key)
	if !ok {
		panic(fmt.Sprintf("context key %q not found", key))
	}
	return val
}
