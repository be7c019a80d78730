// Package csvio implements the input work-table and run-wide index.csv
// readers/writers (§6), with mutex-guarded atomic read-modify-write for the
// input table as required by §5's locking discipline.
package csvio

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"chronodownloader/internal/model"
)

// InputRow is one row of the input work table, §6.
type InputRow struct {
	EntryID      string
	ShortTitle   string
	MainAuthor   string
	DirectLink   string
	Retrievable  string
	Link         string
	DownloadProvider string
	DownloadTimestamp string
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// InputTable is the mutex-guarded input CSV, read once and rewritten
// row-by-row as outcomes are recorded.
type InputTable struct {
	mu   sync.Mutex
	path string
	rows []InputRow
}

var inputHeader = []string{"entry_id", "short_title", "main_author", "direct_link", "retrievable", "link", "download_provider", "download_timestamp"}

// LoadInputTable reads and parses the input CSV, synthesising entry_id for
// blank rows as E{row:04d}.
func LoadInputTable(path string) (*InputTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &InputTable{path: path}, nil
	}

	header := records[0]
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	get := func(rec []string, key string) string {
		if i, ok := idx[key]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var rows []InputRow
	for i, rec := range records[1:] {
		entryID := get(rec, "entry_id")
		if entryID == "" {
			entryID = fmt.Sprintf("E%04d", i+1)
		}
		rows = append(rows, InputRow{
			EntryID:           entryID,
			ShortTitle:        get(rec, "short_title"),
			MainAuthor:        get(rec, "main_author"),
			DirectLink:        get(rec, "direct_link"),
			Retrievable:       get(rec, "retrievable"),
			Link:              get(rec, "link"),
			DownloadProvider:  get(rec, "download_provider"),
			DownloadTimestamp: get(rec, "download_timestamp"),
		})
	}
	return &InputTable{path: path, rows: rows}, nil
}

// Rows returns a copy of every row, including rows without title or direct
// link; callers reject those through ToWorkInput. All rows remain in the file
// on save.
func (t *InputTable) Rows() []InputRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]InputRow, len(t.rows))
	copy(out, t.rows)
	return out
}

// ToWorkInput converts an InputRow into the model's WorkInput, or reports
// ok=false if the row lacks both title and direct link.
func (r InputRow) ToWorkInput() (model.WorkInput, bool) {
	if strings.TrimSpace(r.ShortTitle) == "" && strings.TrimSpace(r.DirectLink) == "" {
		return model.WorkInput{}, false
	}
	return model.WorkInput{
		EntryID:           r.EntryID,
		Title:             r.ShortTitle,
		Creator:           r.MainAuthor,
		DirectManifestURL: r.DirectLink,
	}, true
}

// Completed reports whether the row's retrievable column marks it done.
func (r InputRow) Completed() bool { return truthy(r.Retrievable) }

// UpdateSuccess atomically marks entryID as retrievable with the given
// link/provider/timestamp.
func (t *InputTable) UpdateSuccess(entryID, link, provider string, ts time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].EntryID == entryID {
			t.rows[i].Retrievable = "true"
			t.rows[i].Link = link
			t.rows[i].DownloadProvider = provider
			t.rows[i].DownloadTimestamp = ts.UTC().Format(time.RFC3339)
			break
		}
	}
	return t.saveLocked()
}

// UpdateFailure atomically marks entryID as not retrievable.
func (t *InputTable) UpdateFailure(entryID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].EntryID == entryID {
			t.rows[i].Retrievable = "false"
			break
		}
	}
	return t.saveLocked()
}

// UpdateDeferred leaves the row blank (pending) for retry, per §4.7.
func (t *InputTable) UpdateDeferred(entryID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].EntryID == entryID {
			t.rows[i].Retrievable = ""
		}
	}
	return t.saveLocked()
}

func (t *InputTable) saveLocked() error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write(inputHeader)
	for _, r := range t.rows {
		_ = w.Write([]string{r.EntryID, r.ShortTitle, r.MainAuthor, r.DirectLink, r.Retrievable, r.Link, r.DownloadProvider, r.DownloadTimestamp})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(tmp, t.path)
}

var indexHeader = []string{"work_id", "entry_id", "work_dir", "title", "creator", "selected_provider", "selected_provider_key", "selected_source_id", "selected_dir", "work_json", "status", "item_url"}

// IndexWriter appends rows to the run-wide index.csv under a single mutex,
// per §5's "Index CSV: single mutex around read-modify-write" rule.
type IndexWriter struct {
	mu   sync.Mutex
	path string
}

// NewIndexWriter constructs an IndexWriter, writing the header if the file
// is new.
func NewIndexWriter(path string) (*IndexWriter, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		w := csv.NewWriter(f)
		_ = w.Write(indexHeader)
		w.Flush()
		f.Close()
	}
	return &IndexWriter{path: path}, nil
}

// Append adds one row under the writer's mutex.
func (w *IndexWriter) Append(row model.IndexRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	defer cw.Flush()
	return cw.Write([]string{
		row.WorkID, row.EntryID, row.WorkDir, row.Title, row.Creator,
		row.SelectedProvider, row.SelectedProviderKey, row.SelectedSourceID,
		row.SelectedDir, row.WorkJSON, row.Status, row.ItemURL,
	})
}
