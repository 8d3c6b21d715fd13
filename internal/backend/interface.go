package backend

import (
	"context"

	"khanevadati/internal/storage"
)

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc releases resources held by a backend
type CleanupFunc func() error

// BackendResult contains the store and its cleanup function
type BackendResult struct {
	Store   storage.Store
	Cleanup CleanupFunc
}

// Ready pings the store when it supports it.
func (r *BackendResult) Ready(ctx context.Context) error {
	if p, ok := r.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
