package config

import (
	"errors"
	"sync"
	"time"
)

var ErrInvalidPolicy = errors.New("rate limit max and window must be positive")

// PolicyConfig holds the runtime-adjustable global rate limit
type PolicyConfig struct {
	RateLimitMax    int           `json:"max"`
	RateLimitWindow time.Duration `json:"window"`
}

// DynamicConfigManager manages thread-safe config updates
type DynamicConfigManager struct {
	mu     sync.RWMutex
	policy PolicyConfig
}

func NewDynamicConfigManager(initial PolicyConfig) *DynamicConfigManager {
	return &DynamicConfigManager{policy: initial}
}

func (m *DynamicConfigManager) GetPolicy() PolicyConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

func (m *DynamicConfigManager) UpdatePolicy(newPolicy PolicyConfig) error {
	if newPolicy.RateLimitMax <= 0 || newPolicy.RateLimitWindow <= 0 {
		return ErrInvalidPolicy
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = newPolicy
	return nil
}
