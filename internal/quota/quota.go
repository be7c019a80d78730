// Package quota implements C10, grounded closely on original_source's
// main/quota_manager.py: per-provider counters with rolling reset windows,
// read/written exclusively through the C9 state store.
package quota

import (
	"time"

	"chronodownloader/internal/config"
	"chronodownloader/internal/model"
	"chronodownloader/internal/statestore"
)

// Manager implements C10's can_download/record_download/has_quota API. It
// is an explicit collaborator constructed once at startup and injected,
// replacing the original's module-level singleton per the redesign flag.
type Manager struct {
	Config *config.Store
	Store  *statestore.Store
}

// New constructs a Manager.
func New(cfg *config.Store, store *statestore.Store) *Manager {
	return &Manager{Config: cfg, Store: store}
}

// HasQuota reports whether providerKey has quota accounting enabled in
// configuration. Providers without quota are always allowed through this
// component (they remain subject to §4.2's rate limiter/breaker).
func (m *Manager) HasQuota(providerKey string) bool {
	return m.Config.Get().ProviderSetting(providerKey).Quota.Enabled
}

func (m *Manager) getOrCreateLocked(doc *model.UnifiedState, providerKey string) *model.ProviderQuota {
	q, ok := doc.Quotas[providerKey]
	if !ok {
		qs := m.Config.Get().ProviderSetting(providerKey).Quota
		q = &model.ProviderQuota{
			ProviderKey: providerKey,
			DailyLimit:  qs.DailyLimit,
			ResetHours:  qs.ResetHours,
			PeriodStart: time.Now().UTC().Format(time.RFC3339),
		}
		doc.Quotas[providerKey] = q
	}
	checkAndReset(q)
	return q
}

func checkAndReset(q *model.ProviderQuota) {
	start, err := time.Parse(time.RFC3339, q.PeriodStart)
	if err != nil {
		q.PeriodStart = time.Now().UTC().Format(time.RFC3339)
		return
	}
	resetAt := start.Add(time.Duration(q.ResetHours * float64(time.Hour)))
	if !time.Now().Before(resetAt) { // now >= resetAt, inclusive per §8 boundary behaviour
		q.DownloadsUsed = 0
		q.ExhaustedAt = ""
		q.PeriodStart = time.Now().UTC().Format(time.RFC3339)
	}
}

// CanDownload returns (allowed, seconds_until_reset). daily_limit<=0 means
// quota disabled (always allowed), per §8 boundary behaviour.
func (m *Manager) CanDownload(providerKey string) (bool, time.Duration) {
	if !m.HasQuota(providerKey) {
		return true, 0
	}
	var allowed bool
	var wait time.Duration
	_ = m.Store.Mutate(func(doc *model.UnifiedState) {
		q := m.getOrCreateLocked(doc, providerKey)
		if q.DailyLimit <= 0 {
			allowed = true
			return
		}
		if q.DownloadsUsed < q.DailyLimit {
			allowed = true
			return
		}
		start, _ := time.Parse(time.RFC3339, q.PeriodStart)
		resetAt := start.Add(time.Duration(q.ResetHours * float64(time.Hour)))
		allowed = false
		wait = time.Until(resetAt)
		if wait < 0 {
			wait = 0
		}
	})
	return allowed, wait
}

// RecordDownload increments the provider's counter, atomically with the
// allow-check by virtue of running inside the same store mutation, and
// records exhaustion once the limit is reached, per §8 invariant 3.
func (m *Manager) RecordDownload(providerKey string) {
	_ = m.Store.Mutate(func(doc *model.UnifiedState) {
		q := m.getOrCreateLocked(doc, providerKey)
		q.DownloadsUsed++
		if q.DailyLimit > 0 && q.DownloadsUsed >= q.DailyLimit {
			q.ExhaustedAt = time.Now().UTC().Format(time.RFC3339)
		}
	})
}

// Status is a read-only snapshot for the --quota-status CLI command.
type Status struct {
	ProviderKey   string
	DailyLimit    int
	DownloadsUsed int
	NextReset     time.Time
	Exhausted     bool
}

// AllStatuses returns a snapshot of every known provider's quota state.
func (m *Manager) AllStatuses() []Status {
	var out []Status
	_ = m.Store.Mutate(func(doc *model.UnifiedState) {
		for key, q := range doc.Quotas {
			checkAndReset(q)
			start, _ := time.Parse(time.RFC3339, q.PeriodStart)
			next := start.Add(time.Duration(q.ResetHours * float64(time.Hour)))
			out = append(out, Status{
				ProviderKey:   key,
				DailyLimit:    q.DailyLimit,
				DownloadsUsed: q.DownloadsUsed,
				NextReset:     next,
				Exhausted:     q.ExhaustedAt != "",
			})
		}
	})
	return out
}
