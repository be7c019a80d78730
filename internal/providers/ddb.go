// ddb.go adapts the Deutsche Digitale Bibliothek search API. API-key gated
// via DDB_API_KEY; omitted from the run when unset.
package providers

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

const ddbSearchURL = "https://api.deutsche-digitale-bibliothek.de/search"

// DDB implements Provider for the Deutsche Digitale Bibliothek.
type DDB struct {
	Client *httpclient.Client
	Opts   ManifestDownloadOptions
}

func (p *DDB) Key() string     { return "ddb" }
func (p *DDB) Display() string { return "Deutsche Digitale Bibliothek" }

func (p *DDB) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	key := os.Getenv("DDB_API_KEY")
	if key == "" {
		return nil, nil
	}
	query := title
	if creator != "" {
		query = fmt.Sprintf("%s %s", title, creator)
	}
	params := url.Values{
		"query":  {query},
		"oauth_token": {key},
		"rows":   {fmt.Sprintf("%d", maxResults)},
	}
	res, err := p.Client.Request(ctx, ddbSearchURL, params, nil, httpclient.ExpectJSON)
	if err != nil || res == nil || res.JSON == nil {
		return nil, err
	}
	results, _ := res.JSON["results"].([]interface{})
	var out []model.SearchResult
	for _, rRaw := range results {
		r, _ := rRaw.(map[string]interface{})
		docs, _ := r["docs"].([]interface{})
		for _, dRaw := range docs {
			d, _ := dRaw.(map[string]interface{})
			id, _ := d["id"].(string)
			t := firstString(d["title"])
			out = append(out, model.SearchResult{
				ProviderDisplay: p.Display(), ProviderKey: p.Key(),
				Title: t, SourceID: id,
				ItemURL: fmt.Sprintf("https://www.deutsche-digitale-bibliothek.de/item/%s", id),
			})
		}
	}
	return out, nil
}

func (p *DDB) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	_ = SaveJSON(result, outputFolder, fmt.Sprintf("ddb_%s_search_meta", sanitizeID(result.SourceID)), p.Opts.Budget, wc.WorkID)
	if result.ManifestURL == "" {
		return false, nil
	}
	return DownloadFromManifest(ctx, p.Client, wc, result.ManifestURL, outputFolder, "ddb_"+sanitizeID(result.SourceID), p.Opts)
}
