// Package budget implements the global and per-work byte accountant (C3):
// a single mutex-guarded set of counters with enforced ceilings and a
// skip-or-stop policy on exceed, grounded on the locking discipline of
// original_source's api/core/budget.py but keyed by content class per work
// (images/pdfs/metadata) rather than by provider.
package budget

import (
	"sync"

	"chronodownloader/internal/model"
)

// OnExceed is the configured policy when a ceiling is hit.
type OnExceed string

const (
	Skip OnExceed = "skip"
	Stop OnExceed = "stop"
)

// Limits holds the configured byte ceilings, 0 meaning unlimited.
type Limits struct {
	Total   map[model.ContentClass]int64
	PerWork map[model.ContentClass]int64
}

// Accountant tracks bytes downloaded, globally and per work, by content
// class, and enforces configured ceilings.
type Accountant struct {
	mu        sync.Mutex
	limits    Limits
	onExceed  OnExceed
	global    map[model.ContentClass]int64
	perWork   map[string]map[model.ContentClass]int64
	exhausted bool
}

// New constructs an Accountant. GB-denominated limits are converted to bytes
// by the caller before being passed in.
func New(limits Limits, onExceed OnExceed) *Accountant {
	if onExceed == "" {
		onExceed = Skip
	}
	return &Accountant{
		limits:   limits,
		onExceed: onExceed,
		global:   map[model.ContentClass]int64{},
		perWork:  map[string]map[model.ContentClass]int64{},
	}
}

func limitValue(v int64) int64 {
	if v <= 0 {
		return -1 // unlimited
	}
	return v
}

// AllowBytes reports whether n additional bytes of class cls may be recorded
// for workID without exceeding any configured ceiling.
func (a *Accountant) AllowBytes(workID string, cls model.ContentClass, n int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.exhausted && a.onExceed == Stop {
		return false
	}
	if lim := limitValue(a.limits.Total[cls]); lim >= 0 && a.global[cls]+n > lim {
		return false
	}
	if lim := limitValue(a.limits.PerWork[cls]); lim >= 0 {
		if a.perWork[workID][cls]+n > lim {
			return false
		}
	}
	return true
}

// AddBytes records n bytes of class cls against workID and the global
// counter, and flips the exhausted flag (stop policy only) if the global
// ceiling for cls is now met or exceeded; per-work ceilings never flip it.
func (a *Accountant) AddBytes(workID string, cls model.ContentClass, n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.global[cls] += n
	if a.perWork[workID] == nil {
		a.perWork[workID] = map[model.ContentClass]int64{}
	}
	a.perWork[workID][cls] += n
	if lim := limitValue(a.limits.Total[cls]); lim >= 0 && a.global[cls] >= lim {
		if a.onExceed == Stop {
			a.exhausted = true
		}
	}
}

// Exhausted reports whether the stop policy has tripped; once true, the
// façade must halt submission of further works.
func (a *Accountant) Exhausted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exhausted
}

// GlobalBytes returns the current global counter for cls (for diagnostics
// and the round-trip invariant: sum of per-work counters == global counter).
func (a *Accountant) GlobalBytes(cls model.ContentClass) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.global[cls]
}

// PerWorkBytes returns the per-work counter for cls.
func (a *Accountant) PerWorkBytes(workID string, cls model.ContentClass) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perWork[workID][cls]
}
