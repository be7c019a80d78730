// Package deferred implements C11: a persistent FIFO of work+provider pairs
// blocked by quota, grounded on original_source's main/deferred_queue.py.
package deferred

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"chronodownloader/internal/model"
	"chronodownloader/internal/statestore"
)

// Queue implements C11's add/get_ready/mark_* API, reading and writing
// exclusively through the C9 state store.
type Queue struct {
	Store      *statestore.Store
	MaxRetries int
}

// New constructs a Queue.
func New(store *statestore.Store, maxRetries int) *Queue {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Queue{Store: store, MaxRetries: maxRetries}
}

// Add upserts a non-terminal (entry_id, provider_key) pair. A duplicate
// (matched by entry_id+provider_key among non-terminal items) updates the
// reset_time but does not add a new row, per §4.5 and invariant 4.
func (q *Queue) Add(item model.DeferredItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.DeferredAt == "" {
		item.DeferredAt = time.Now().UTC().Format(time.RFC3339)
	}
	if item.Status == "" {
		item.Status = model.DeferredPending
	}
	var id string
	err := q.Store.Mutate(func(doc *model.UnifiedState) {
		for _, existing := range doc.DeferredItem {
			if existing.EntryID == item.EntryID && existing.ProviderKey == item.ProviderKey && isNonTerminal(existing.Status) {
				existing.ResetTime = item.ResetTime
				id = existing.ID
				return
			}
		}
		doc.DeferredItem = append(doc.DeferredItem, &item)
		id = item.ID
	})
	return id, err
}

func isNonTerminal(s model.DeferredStatus) bool {
	return s == model.DeferredPending || s == model.DeferredRetrying
}

// GetReady returns items whose reset_time has passed and whose status is
// pending or retrying.
func (q *Queue) GetReady() ([]model.DeferredItem, error) {
	var out []model.DeferredItem
	err := q.Store.Mutate(func(doc *model.UnifiedState) {
		now := time.Now().UTC()
		for _, it := range doc.DeferredItem {
			if !isNonTerminal(it.Status) {
				continue
			}
			if it.ResetTime == "" {
				out = append(out, *it)
				continue
			}
			resetAt, err := time.Parse(time.RFC3339, it.ResetTime)
			if err != nil || !now.Before(resetAt) {
				out = append(out, *it)
			}
		}
	})
	return out, err
}

// MarkCompleted transitions item id to completed.
func (q *Queue) MarkCompleted(id string) error {
	return q.Store.Mutate(func(doc *model.UnifiedState) {
		if it := find(doc, id); it != nil {
			it.Status = model.DeferredComplete
		}
	})
}

// MarkFailed transitions item id to failed with an error message.
func (q *Queue) MarkFailed(id, msg string) error {
	return q.Store.Mutate(func(doc *model.UnifiedState) {
		if it := find(doc, id); it != nil {
			it.Status = model.DeferredFailed
			it.ErrorMessage = msg
		}
	})
}

// MarkRetrying increments retry_count, refreshes reset_time if given, and
// transitions to failed once retry_count reaches MaxRetries.
func (q *Queue) MarkRetrying(id string, newResetTime *time.Time) error {
	return q.Store.Mutate(func(doc *model.UnifiedState) {
		it := find(doc, id)
		if it == nil {
			return
		}
		it.RetryCount++
		it.LastRetryAt = time.Now().UTC().Format(time.RFC3339)
		if newResetTime != nil {
			it.ResetTime = newResetTime.UTC().Format(time.RFC3339)
		}
		if it.RetryCount >= q.MaxRetries {
			it.Status = model.DeferredFailed
			return
		}
		it.Status = model.DeferredRetrying
	})
}

// RefreshResetTime updates an item's reset_time without consuming a retry,
// for the case where quota is still exhausted at poll time (§4.5 step 3):
// the item was never actually retried, so MarkRetrying's retry_count bump
// would be premature.
func (q *Queue) RefreshResetTime(id string, newResetTime time.Time) error {
	return q.Store.Mutate(func(doc *model.UnifiedState) {
		if it := find(doc, id); it != nil {
			it.ResetTime = newResetTime.UTC().Format(time.RFC3339)
		}
	})
}

func find(doc *model.UnifiedState, id string) *model.DeferredItem {
	for _, it := range doc.DeferredItem {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// CleanupOld removes completed/failed items older than 7 days, run on load.
func (q *Queue) CleanupOld() error {
	return q.Store.Mutate(func(doc *model.UnifiedState) {
		cutoff := time.Now().UTC().AddDate(0, 0, -7)
		var kept []*model.DeferredItem
		for _, it := range doc.DeferredItem {
			if it.Status == model.DeferredComplete || it.Status == model.DeferredFailed {
				ts, err := time.Parse(time.RFC3339, it.DeferredAt)
				if err == nil && ts.Before(cutoff) {
					continue
				}
			}
			kept = append(kept, it)
		}
		doc.DeferredItem = kept
	})
}

// RawPayload unmarshals an item's opaque raw provider payload into v.
func RawPayload(item model.DeferredItem, v interface{}) error {
	if len(item.RawProviderData) == 0 {
		return nil
	}
	return json.Unmarshal(item.RawProviderData, v)
}
