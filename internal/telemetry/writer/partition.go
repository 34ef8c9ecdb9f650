package writer

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"rklog/internal/core/artifact"
)

// Resolver computes partition-relative file paths. Two flushes of the same
// artifact type within one second get distinct sequence suffixes, so a retry
// or a burst never overwrites a prior file
type Resolver struct {
	mu   sync.Mutex
	seen map[string]int
}

// NewResolver returns an empty resolver
func NewResolver() *Resolver {
	return &Resolver{seen: make(map[string]int)}
}

// Resolve returns "{type}/{YYYY}/{MM}/{DD}/{type}_{HHMMSS}[_{NN}].{ext}"
// for the given flush time. Computed once per batch, never recomputed
func (r *Resolver) Resolve(t artifact.Type, flushTime time.Time, ext string) string {
	ft := flushTime.UTC()
	stem := fmt.Sprintf("%s_%s", t, ft.Format("150405"))
	key := ft.Format("2006-01-02") + "/" + stem

	r.mu.Lock()
	seq := r.seen[key]
	r.seen[key] = seq + 1
	r.mu.Unlock()

	name := stem
	if seq > 0 {
		name = fmt.Sprintf("%s_%02d", stem, seq)
	}
	return filepath.Join(
		string(t),
		ft.Format("2006"),
		ft.Format("01"),
		ft.Format("02"),
		name+"."+ext,
	)
}
