// annas_archive.go adapts a quota-limited provider, grounded on
// original_source's api/annas_archive_api.py. This is the provider spec §8
// scenario S2 exercises end to end: its Download raises QuotaDeferred once
// the caller-supplied quota checker reports exhaustion.
package providers

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

const annasSearchURL = "https://annas-archive.org/search"

// QuotaChecker reports whether a download for providerKey is currently
// allowed, and if not, when it next resets. It is satisfied by
// internal/quota.Manager.
type QuotaChecker interface {
	CanDownload(providerKey string) (bool, time.Duration)
	RecordDownload(providerKey string)
}

// AnnasArchive implements Provider for annas-archive.org.
type AnnasArchive struct {
	Client *httpclient.Client
	Quota  QuotaChecker
	Budget *budget.Accountant
}

func (p *AnnasArchive) Key() string     { return "annas_archive" }
func (p *AnnasArchive) Display() string { return "Anna's Archive" }

func (p *AnnasArchive) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	q := title
	if creator != "" {
		q += " " + creator
	}
	params := url.Values{"q": {q}}
	res, err := p.Client.Request(ctx, annasSearchURL, params, nil, httpclient.ExpectJSON)
	if err != nil || res == nil || res.JSON == nil {
		return nil, err
	}
	items, _ := res.JSON["results"].([]interface{})
	var out []model.SearchResult
	for i, itemRaw := range items {
		if i >= maxResults {
			break
		}
		item, _ := itemRaw.(map[string]interface{})
		md5, _ := item["md5"].(string)
		t := firstString(item["title"])
		out = append(out, model.SearchResult{
			ProviderDisplay: p.Display(), ProviderKey: p.Key(),
			Title: t, SourceID: md5,
			ItemURL:     fmt.Sprintf("https://annas-archive.org/md5/%s", md5),
			ManifestURL: fmt.Sprintf("https://annas-archive.org/dyn/%s.json", md5),
		})
	}
	return out, nil
}

func (p *AnnasArchive) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	if p.Quota != nil {
		if allowed, wait := p.Quota.CanDownload(p.Key()); !allowed {
			return false, &QuotaDeferred{ProviderKey: p.Key(), ResetTime: time.Now().Add(wait)}
		}
	}

	_ = SaveJSON(result, outputFolder, fmt.Sprintf("annas_archive_%s_search_meta", sanitizeID(result.SourceID)), p.Budget, wc.WorkID)
	if p.Budget != nil && !p.Budget.AllowBytes(wc.WorkID, model.ClassPDFs, 0) {
		return false, nil
	}
	destName := fmt.Sprintf("annas_archive_%s%s", sanitizeID(result.SourceID), ".pdf")
	downloadURL := fmt.Sprintf("https://annas-archive.org/dyn/small_file/%s", result.SourceID)
	n, derr := p.Client.DownloadFile(ctx, downloadURL, outputFolder, filepath.Join("objects", destName), "pdf")
	if n > 0 && p.Budget != nil {
		p.Budget.AddBytes(wc.WorkID, model.ClassPDFs, n)
	}
	if derr != nil || n == 0 {
		return false, nil
	}
	// downloads_used is recorded once by the caller (the pipeline, or the
	// retry scheduler for deferred items) on confirmed success, not here, to
	// avoid double-counting against daily_limit.
	return true, nil
}
