package flipbook

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Status is the lifecycle phase of a flipbook's current document.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// LoadStatus describes the latest load of a flipbook.
type LoadStatus struct {
	Status     Status         `json:"status"`
	Progress   int            `json:"progress"`
	Message    string         `json:"message,omitempty"`
	Generation uint64         `json:"generation"`
	Start      *time.Time     `json:"start_time,omitempty"`
	End        *time.Time     `json:"end_time,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Terminal reports whether the load has finished, successfully or not.
func (s LoadStatus) Terminal() bool {
	return s.Status == StatusReady || s.Status == StatusFailed
}

// StatusStore persists LoadStatus records by flipbook id.
type StatusStore interface {
	Set(ctx context.Context, id string, st LoadStatus) error
	Get(ctx context.Context, id string) (LoadStatus, bool, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStatus keeps status records in process, expiring them after ttl.
type MemoryStatus struct {
	c *cache.Cache
}

// NewMemoryStatus creates an in-process store. ttl <= 0 never expires.
func NewMemoryStatus(ttl time.Duration) *MemoryStatus {
	cleanup := time.Minute
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	return &MemoryStatus{c: cache.New(ttl, cleanup)}
}

func (m *MemoryStatus) Set(_ context.Context, id string, st LoadStatus) error {
	m.c.Set(id, st, cache.DefaultExpiration)
	return nil
}

func (m *MemoryStatus) Get(_ context.Context, id string) (LoadStatus, bool, error) {
	v, ok := m.c.Get(id)
	if !ok {
		return LoadStatus{}, false, nil
	}
	return v.(LoadStatus), true, nil
}

func (m *MemoryStatus) Delete(_ context.Context, id string) error {
	m.c.Delete(id)
	return nil
}
