// Package config loads the hierarchical JSON configuration document and
// exposes provider-scoped sub-views with defaults, mirroring the single
// cached-read pattern the rest of the engine relies on.
package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

const envConfigPath = "CHRONO_CONFIG_PATH"
const defaultConfigPath = "config.json"

// NetworkSettings is the per-provider network policy block.
type NetworkSettings struct {
	DelayMS               int64             `json:"delay_ms"`
	JitterMS              int64             `json:"jitter_ms"`
	MaxAttempts           int               `json:"max_attempts"`
	BaseBackoffSeconds    float64           `json:"base_backoff_s"`
	BackoffMultiplier     float64           `json:"backoff_multiplier"`
	MaxBackoffSeconds     float64           `json:"max_backoff_s"`
	TimeoutSeconds        float64           `json:"timeout_s"`
	VerifySSL             *bool             `json:"verify_ssl"`
	CircuitBreakerEnabled bool              `json:"circuit_breaker_enabled"`
	Headers               map[string]string `json:"headers,omitempty"`
}

// VerifyTLS reports whether certificate verification is enabled, defaulting
// to true when verify_ssl is absent from the provider's config block.
func (n NetworkSettings) VerifyTLS() bool {
	return n.VerifySSL == nil || *n.VerifySSL
}

// Timeout returns the configured total per-request timeout, 0 meaning none.
func (n NetworkSettings) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(n.TimeoutSeconds * float64(time.Second))
}

// QuotaSettings is the per-provider quota policy block.
type QuotaSettings struct {
	Enabled    bool    `json:"enabled"`
	DailyLimit int     `json:"daily_limit"`
	ResetHours float64 `json:"reset_hours"`
}

// ProviderSettings is one provider's settings sub-document.
type ProviderSettings struct {
	MaxResults    int             `json:"max_results"`
	MaxPages      int             `json:"max_pages"`
	MinTitleScore float64         `json:"min_title_score"`
	Network       NetworkSettings `json:"network"`
	Quota         QuotaSettings   `json:"quota"`
}

// SelectionSettings configures C7.
type SelectionSettings struct {
	Strategy                string   `json:"strategy"`
	ProviderHierarchy       []string `json:"provider_hierarchy"`
	MinTitleScore           float64  `json:"min_title_score"`
	CreatorWeight           float64  `json:"creator_weight"`
	MaxCandidatesPerProvider int     `json:"max_candidates_per_provider"`
	DownloadStrategy        string   `json:"download_strategy"`
	KeepNonSelectedMetadata bool     `json:"keep_non_selected_metadata"`
	MaxParallelSearches     int      `json:"max_parallel_searches"`
}

// DownloadSettings configures download behaviour (C4/C8/C13).
type DownloadSettings struct {
	PreferPDFOverImages      bool           `json:"prefer_pdf_over_images"`
	DownloadManifestRenderings bool         `json:"download_manifest_renderings"`
	MaxRenderingsPerManifest int            `json:"max_renderings_per_manifest"`
	RenderingMimeWhitelist   []string       `json:"rendering_mime_whitelist"`
	OverwriteExisting        bool           `json:"overwrite_existing"`
	IncludeMetadata          bool           `json:"include_metadata"`
	ResumeMode               string         `json:"resume_mode"`
	MaxParallelDownloads     int            `json:"max_parallel_downloads"`
	ProviderConcurrency      map[string]int `json:"provider_concurrency"`
	WorkerTimeoutSeconds     int            `json:"worker_timeout_s"`
}

// LimitBlock is one tier of download_limits (total or per_work).
type LimitBlock struct {
	ImagesGB   float64 `json:"images_gb"`
	PDFsGB     float64 `json:"pdfs_gb"`
	MetadataGB float64 `json:"metadata_gb"`
}

// DownloadLimits configures C3.
type DownloadLimits struct {
	Total    LimitBlock `json:"total"`
	PerWork  LimitBlock `json:"per_work"`
	OnExceed string     `json:"on_exceed"`
}

// DeferredSettings configures C9/C11/C12.
type DeferredSettings struct {
	StateFile              string `json:"state_file"`
	BackgroundEnabled      bool   `json:"background_enabled"`
	CheckIntervalMinutes   int    `json:"check_interval_minutes"`
	MaxRetries             int    `json:"max_retries"`
}

// GeneralSettings configures the façade's defaults.
type GeneralSettings struct {
	InteractiveMode  bool   `json:"interactive_mode"`
	DefaultOutputDir string `json:"default_output_dir"`
	DefaultCSVPath   string `json:"default_csv_path"`
}

// Document is the full configuration document, §6.
type Document struct {
	Providers        map[string]bool             `json:"providers"`
	ProviderSettings map[string]ProviderSettings `json:"provider_settings"`
	Selection        SelectionSettings           `json:"selection"`
	Download         DownloadSettings            `json:"download"`
	DownloadLimits   DownloadLimits              `json:"download_limits"`
	Deferred         DeferredSettings            `json:"deferred"`
	General          GeneralSettings             `json:"general"`
}

// Store caches one parsed configuration document for the process lifetime.
type Store struct {
	mu   sync.Mutex
	path string
	doc  *Document
}

// NewStore creates a Store reading from path, or from CHRONO_CONFIG_PATH /
// the default config.json path when path is empty.
func NewStore(path string) *Store {
	if path == "" {
		if env := os.Getenv(envConfigPath); env != "" {
			path = env
		} else {
			path = defaultConfigPath
		}
	}
	return &Store{path: path}
}

// Get returns the cached document, loading it on first access. A missing or
// unparseable file yields an empty document with defaults applied, per §7
// ("Config parse failure: empty config, execution continues").
func (s *Store) Get() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		return s.doc
	}
	doc := &Document{Providers: map[string]bool{}, ProviderSettings: map[string]ProviderSettings{}}
	if raw, err := os.ReadFile(s.path); err == nil {
		_ = json.Unmarshal(raw, doc)
	}
	applyDefaults(doc)
	s.doc = doc
	return doc
}

// Reload forces the next Get to re-read from disk.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = nil
}

func applyDefaults(doc *Document) {
	if doc.Providers == nil {
		doc.Providers = map[string]bool{}
	}
	if doc.ProviderSettings == nil {
		doc.ProviderSettings = map[string]ProviderSettings{}
	}
	if doc.Selection.Strategy == "" {
		doc.Selection.Strategy = "collect_and_select"
	}
	if doc.Selection.MinTitleScore == 0 {
		doc.Selection.MinTitleScore = 70
	}
	if doc.Selection.CreatorWeight == 0 {
		doc.Selection.CreatorWeight = 0.3
	}
	if doc.Selection.MaxCandidatesPerProvider == 0 {
		doc.Selection.MaxCandidatesPerProvider = 3
	}
	if doc.Selection.DownloadStrategy == "" {
		doc.Selection.DownloadStrategy = "selected_only"
	}
	if doc.Selection.MaxParallelSearches == 0 {
		doc.Selection.MaxParallelSearches = 1
	}
	if doc.Download.MaxRenderingsPerManifest == 0 {
		doc.Download.MaxRenderingsPerManifest = 1
	}
	if len(doc.Download.RenderingMimeWhitelist) == 0 {
		doc.Download.RenderingMimeWhitelist = []string{"pdf", "epub"}
	}
	if doc.Download.ResumeMode == "" {
		doc.Download.ResumeMode = "skip_completed"
	}
	if doc.Download.MaxParallelDownloads == 0 {
		doc.Download.MaxParallelDownloads = 4
	}
	if doc.Download.ProviderConcurrency == nil {
		doc.Download.ProviderConcurrency = map[string]int{}
	}
	if doc.Download.WorkerTimeoutSeconds == 0 {
		doc.Download.WorkerTimeoutSeconds = 300
	}
	if doc.DownloadLimits.OnExceed == "" {
		doc.DownloadLimits.OnExceed = "skip"
	}
	if doc.Deferred.StateFile == "" {
		doc.Deferred.StateFile = ".downloader_state.json"
	}
	if doc.Deferred.CheckIntervalMinutes == 0 {
		doc.Deferred.CheckIntervalMinutes = 15
	}
	if doc.Deferred.MaxRetries == 0 {
		doc.Deferred.MaxRetries = 5
	}
	if doc.General.DefaultOutputDir == "" {
		doc.General.DefaultOutputDir = "./output"
	}
	if doc.General.DefaultCSVPath == "" {
		doc.General.DefaultCSVPath = "./input.csv"
	}
}

// ProviderSetting returns the settings for key, applying defaults for
// max_results, min_title_score and the network block (quota settings are
// returned as configured), and resolving the legacy bnf_gallica -> gallica
// alias.
func (d *Document) ProviderSetting(key string) ProviderSettings {
	if key == "bnf_gallica" {
		if s, ok := d.ProviderSettings["gallica"]; ok {
			key = "gallica"
			_ = s
		}
	}
	ps, ok := d.ProviderSettings[key]
	if !ok {
		ps = ProviderSettings{}
	}
	if ps.MaxResults == 0 {
		ps.MaxResults = 3
	}
	if ps.MinTitleScore == 0 {
		ps.MinTitleScore = d.Selection.MinTitleScore
	}
	net := &ps.Network
	if net.MaxAttempts == 0 {
		net.MaxAttempts = 5
	}
	if net.BaseBackoffSeconds == 0 {
		net.BaseBackoffSeconds = 1.5
	}
	if net.BackoffMultiplier == 0 {
		net.BackoffMultiplier = 1.5
	}
	if net.MaxBackoffSeconds == 0 {
		net.MaxBackoffSeconds = 60.0
	}
	if net.TimeoutSeconds == 0 {
		net.TimeoutSeconds = 30
	}
	return ps
}

// MaxPages resolves a provider's page cap; 0 or absent means unlimited.
func (d *Document) MaxPages(key string) int {
	ps := d.ProviderSetting(key)
	if ps.MaxPages <= 0 {
		return int(^uint(0) >> 1)
	}
	return ps.MaxPages
}

// ProviderEnabled reports whether key is turned on in providers{}.
func (d *Document) ProviderEnabled(key string) bool {
	v, ok := d.Providers[key]
	return ok && v
}
