package service

import "sync"

// GenerationGuard orders overlapping identity resolutions by start order.
// Begin hands out a monotonic generation; a resolution whose generation has
// been superseded performs no mutation at all. The counter is never reset.
type GenerationGuard struct {
	mu      sync.Mutex
	current uint64
}

// Begin increments the process-wide counter and returns the new generation.
func (g *GenerationGuard) Begin() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	return g.current
}

// IsCurrent reports whether gen is still the newest generation.
func (g *GenerationGuard) IsCurrent(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gen == g.current
}

// Finalize runs apply iff gen is still current, atomically with the check.
// It reports whether apply ran.
func (g *GenerationGuard) Finalize(gen uint64, apply func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.current {
		return false
	}
	apply()
	return true
}
