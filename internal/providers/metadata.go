package providers

import (
	"encoding/json"
	"os"
	"path/filepath"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/model"
)

// SaveJSON writes v as indented JSON under outputFolder/metadata/name.json,
// mirroring original_source's api/utils.save_json helper, and counts the
// written bytes against workID's metadata class (acct may be nil).
func SaveJSON(v interface{}, outputFolder, name string, acct *budget.Accountant, workID string) error {
	if budgetExhausted(acct, workID, model.ClassMetadata) {
		return nil
	}
	dir := filepath.Join(outputFolder, "metadata")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	err = os.WriteFile(filepath.Join(dir, name+".json"), raw, 0o644)
	if err == nil && acct != nil {
		acct.AddBytes(workID, model.ClassMetadata, int64(len(raw)))
	}
	return err
}
