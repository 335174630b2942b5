package ratelimit

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/repo"
)

const stripeCount = 256

type memEntry struct {
	last  time.Time
	count int64
}

// MemoryBackend keeps windows in process. Keys hash onto a fixed set of lock
// stripes; Admit takes the stripes of its keys in ascending order, so
// admissions on disjoint keys proceed in parallel and overlapping ones cannot
// deadlock.
type MemoryBackend struct {
	stripes [stripeCount]sync.Mutex
	entries sync.Map // domain.RateLimitKey -> *memEntry, mutated under its stripe
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func stripeOf(k domain.RateLimitKey) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.String()))
	return int(h.Sum32() % stripeCount)
}

func (m *MemoryBackend) lock(windows []repo.Window) func() {
	idx := make([]int, 0, len(windows))
	seen := make(map[int]bool, len(windows))
	for _, w := range windows {
		s := stripeOf(w.Key)
		if !seen[s] {
			seen[s] = true
			idx = append(idx, s)
		}
	}
	sort.Ints(idx)
	for _, s := range idx {
		m.stripes[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			m.stripes[idx[i]].Unlock()
		}
	}
}

// Admit implements Backend.
func (m *MemoryBackend) Admit(_ context.Context, windows []repo.Window, now time.Time) (bool, error) {
	unlock := m.lock(windows)
	defer unlock()

	for _, w := range windows {
		if v, ok := m.entries.Load(w.Key); ok {
			if now.Sub(v.(*memEntry).last) < w.Cooldown {
				return false, nil
			}
		}
	}
	for _, w := range windows {
		if v, ok := m.entries.Load(w.Key); ok {
			e := v.(*memEntry)
			e.last = now
			e.count++
			continue
		}
		m.entries.Store(w.Key, &memEntry{last: now, count: 1})
	}
	return true, nil
}

// Sweep implements Backend.
func (m *MemoryBackend) Sweep(_ context.Context, tenantID string, cutoff time.Time) (int64, error) {
	var n int64
	m.entries.Range(func(k, v any) bool {
		key := k.(domain.RateLimitKey)
		if key.TenantID != tenantID {
			return true
		}
		s := stripeOf(key)
		m.stripes[s].Lock()
		if v, ok := m.entries.Load(key); ok && v.(*memEntry).last.Before(cutoff) {
			m.entries.Delete(key)
			n++
		}
		m.stripes[s].Unlock()
		return true
	})
	return n, nil
}

// Len returns the number of held entries.
func (m *MemoryBackend) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Count returns how many times key was admitted.
func (m *MemoryBackend) Count(key domain.RateLimitKey) int64 {
	s := stripeOf(key)
	m.stripes[s].Lock()
	defer m.stripes[s].Unlock()
	if v, ok := m.entries.Load(key); ok {
		return v.(*memEntry).count
	}
	return 0
}
