// Package model holds the data types shared across the download orchestration
// engine: work input rows, provider search results, work records, quota
// state, and deferred-queue items.
package model

import "encoding/json"

// WorkInput is one row of the input table.
type WorkInput struct {
	EntryID           string
	Title             string
	Creator           string
	DirectManifestURL string
}

// SearchResult is a provider-neutral candidate returned from a provider search.
type SearchResult struct {
	ProviderDisplay string          `json:"provider_display"`
	ProviderKey     string          `json:"provider_key"`
	Title           string          `json:"title"`
	Creators        []string        `json:"creators,omitempty"`
	DateText        string          `json:"date_text,omitempty"`
	SourceID        string          `json:"source_id,omitempty"`
	ManifestURL     string          `json:"manifest_url,omitempty"`
	ItemURL         string          `json:"item_url,omitempty"`
	ThumbnailURL    string          `json:"thumbnail_url,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
	Scores          *Scores         `json:"scores,omitempty"`
}

// Scores is attached to a candidate during selection; it survives
// serialisation with the rest of the search result.
type Scores struct {
	TitleScore   float64 `json:"title_score"`
	CreatorScore float64 `json:"creator_score"`
	Boost        float64 `json:"boost"`
	Total        float64 `json:"total"`
}

// WorkStatus is the status field of a work record.
type WorkStatus string

const (
	StatusPending   WorkStatus = "pending"
	StatusCompleted WorkStatus = "completed"
	StatusPartial   WorkStatus = "partial"
	StatusFailed    WorkStatus = "failed"
	StatusDeferred  WorkStatus = "deferred"
	StatusNoMatch   WorkStatus = "no_match"
)

// WorkRecordInput mirrors the input fields persisted into work.json.
type WorkRecordInput struct {
	Title   string `json:"title"`
	Creator string `json:"creator,omitempty"`
	EntryID string `json:"entry_id,omitempty"`
}

// Selected identifies the candidate chosen for download.
type Selected struct {
	ProviderKey string `json:"provider_key"`
	SourceID    string `json:"source_id,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Download records which provider/source actually produced the content file
// (can differ from Selected after a fallback).
type Download struct {
	Provider string `json:"provider"`
	SourceID string `json:"source_id,omitempty"`
}

// WorkRecord is the on-disk representation of work.json.
type WorkRecord struct {
	Input                   WorkRecordInput `json:"input"`
	CreatedAt               string          `json:"created_at"`
	UpdatedAt               string          `json:"updated_at,omitempty"`
	Status                  WorkStatus      `json:"status"`
	SelectionConfigSnapshot json.RawMessage `json:"selection_config_snapshot,omitempty"`
	Candidates              []SearchResult  `json:"candidates,omitempty"`
	Selected                *Selected       `json:"selected,omitempty"`
	Download                *Download       `json:"download,omitempty"`
}

// DownloadTask is the immutable descriptor passed from selection (phase 1)
// to execution (phase 2). It must never be mutated after construction since
// it crosses the scheduler/worker boundary.
type DownloadTask struct {
	WorkID                  string
	EntryID                 string
	Title                   string
	Creator                 string
	WorkDirPath             string
	WorkStem                string
	SelectedResult          SearchResult
	ProviderKey             string
	ProviderDisplay         string
	AllCandidates           []SearchResult
	ProviderPriority        map[string]int
	SelectionConfigSnapshot json.RawMessage
	BaseOutputDir           string
	WorkRecordPath          string
}

// ProviderQuota is the persisted quota counter state for one provider.
type ProviderQuota struct {
	ProviderKey    string  `json:"provider_key"`
	DailyLimit     int     `json:"daily_limit"`
	ResetHours     float64 `json:"reset_hours"`
	DownloadsUsed  int     `json:"downloads_used"`
	PeriodStart    string  `json:"period_start_iso"`
	ExhaustedAt    string  `json:"exhausted_at_iso,omitempty"`
}

// DeferredStatus is the status field of a deferred queue item.
type DeferredStatus string

const (
	DeferredPending  DeferredStatus = "pending"
	DeferredRetrying DeferredStatus = "retrying"
	DeferredComplete DeferredStatus = "completed"
	DeferredFailed   DeferredStatus = "failed"
)

// DeferredItem is one entry in the persistent deferred-download queue.
type DeferredItem struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Creator         string          `json:"creator,omitempty"`
	EntryID         string          `json:"entry_id,omitempty"`
	ProviderKey     string          `json:"provider_key"`
	ProviderDisplay string          `json:"provider_display"`
	SourceID        string          `json:"source_id,omitempty"`
	WorkDirPath     string          `json:"work_dir_path"`
	BaseOutputDir   string          `json:"base_output_dir"`
	ItemURL         string          `json:"item_url,omitempty"`
	DeferredAt      string          `json:"deferred_at_iso"`
	ResetTime       string          `json:"reset_time_iso,omitempty"`
	RetryCount      int             `json:"retry_count"`
	LastRetryAt     string          `json:"last_retry_at_iso,omitempty"`
	Status          DeferredStatus  `json:"status"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	RawProviderData json.RawMessage `json:"raw_provider_payload,omitempty"`
}

// UnifiedState is the single persistent JSON document C9 owns.
type UnifiedState struct {
	Version      string                    `json:"version"`
	LastUpdated  string                    `json:"last_updated_iso"`
	Quotas       map[string]*ProviderQuota `json:"quotas"`
	DeferredItem []*DeferredItem           `json:"deferred_items"`
}

// ContentClass buckets budget counters.
type ContentClass string

const (
	ClassImages   ContentClass = "images"
	ClassPDFs     ContentClass = "pdfs"
	ClassMetadata ContentClass = "metadata"
)

// IndexRow is one row of the run-wide index.csv.
type IndexRow struct {
	WorkID             string
	EntryID            string
	WorkDir            string
	Title              string
	Creator            string
	SelectedProvider   string
	SelectedProviderKey string
	SelectedSourceID   string
	SelectedDir        string
	WorkJSON           string
	Status             string
	ItemURL            string
}
