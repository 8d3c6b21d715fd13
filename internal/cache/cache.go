// Package cache keeps short-lived read models, such as namespace summaries,
// in memory between mutations.
package cache

import (
	"time"

	"khanevadati/internal/log"
)

// Cache is a keyed store of values that may expire.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// DeletePrefix drops every key starting with prefix and returns how many went.
	DeletePrefix(prefix string) int
	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps expired entries from registered caches.
type Manager struct {
	caches      []Cleaner
	logger      *log.Logger
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		logger:      logger.WithComponent(log.ComponentCache),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "count", n)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Sweep cleans every registered cache once.
func (m *Manager) Sweep() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop halts the cleanup goroutine, if one was started.
func (m *Manager) Stop() {
	if !m.started {
		return
	}
	m.started = false
	close(m.stopCleanup)
	<-m.cleanupDone
}
