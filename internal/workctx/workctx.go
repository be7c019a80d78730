// Package workctx carries per-operation ambient values explicitly instead of
// through goroutine-local storage. A WorkContext is constructed once per task
// by the façade (and by the retry scheduler for deferred items) before the
// download runs, and threaded as a first argument into every
// function that names files or records bytes for that task.
package workctx

import "sync/atomic"

// WorkContext is immutable ambient state for one in-flight work execution.
type WorkContext struct {
	WorkID      string
	EntryID     string
	ProviderKey string
	Stem        string

	counters *fileCounters
}

type fileCounters struct {
	n int64
}

// New constructs a WorkContext with a fresh, zeroed file-sequence counter.
func New(workID, entryID, providerKey, stem string) *WorkContext {
	return &WorkContext{
		WorkID:      workID,
		EntryID:     entryID,
		ProviderKey: providerKey,
		Stem:        stem,
		counters:    &fileCounters{},
	}
}

// NextFileSeq returns the next file-sequence number for this work, starting
// at 1. Used to number multi-page downloads (page_0001, page_0002, ...).
func (c *WorkContext) NextFileSeq() int64 {
	return atomic.AddInt64(&c.counters.n, 1)
}

// WithProvider returns a copy of c scoped to a different provider key,
// leaving the file counters shared (used by fallback attempts within the
// same task).
func (c *WorkContext) WithProvider(providerKey string) *WorkContext {
	cp := *c
	cp.ProviderKey = providerKey
	return &cp
}
