// dpla.go adapts the Digital Public Library of America API. API-key gated
// via DPLA_API_KEY; omitted from the run when unset.
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

const dplaSearchURL = "https://api.dp.la/v2/items"

// DPLA implements Provider for dp.la.
type DPLA struct {
	Client *httpclient.Client
	Opts   ManifestDownloadOptions
}

func (p *DPLA) Key() string     { return "dpla" }
func (p *DPLA) Display() string { return "Digital Public Library of America" }

func (p *DPLA) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	key := os.Getenv("DPLA_API_KEY")
	if key == "" {
		return nil, nil
	}
	params := url.Values{
		"api_key":       {key},
		"sourceResource.title": {title},
		"page_size":     {fmt.Sprintf("%d", maxResults)},
	}
	if creator != "" {
		params.Set("sourceResource.creator", creator)
	}
	res, err := p.Client.Request(ctx, dplaSearchURL, params, nil, httpclient.ExpectJSON)
	if err != nil || res == nil || res.JSON == nil {
		return nil, err
	}
	docs, _ := res.JSON["docs"].([]interface{})
	var out []model.SearchResult
	for _, docRaw := range docs {
		doc, _ := docRaw.(map[string]interface{})
		sr, _ := doc["sourceResource"].(map[string]interface{})
		id, _ := doc["id"].(string)
		t := firstString(sr["title"])
		c := firstString(sr["creator"])
		manifest := ""
		if obj, ok := doc["object"].(string); ok {
			manifest = obj
		}
		out = append(out, model.SearchResult{
			ProviderDisplay: p.Display(), ProviderKey: p.Key(),
			Title: t, Creators: []string{c}, SourceID: id, ManifestURL: manifest,
			ItemURL: fmt.Sprintf("https://dp.la/item/%s", id),
		})
	}
	return out, nil
}

func (p *DPLA) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	_ = SaveJSON(result, outputFolder, fmt.Sprintf("dpla_%s_search_meta", sanitizeID(result.SourceID)), p.Opts.Budget, wc.WorkID)
	if result.ManifestURL == "" {
		return false, nil
	}
	return DownloadFromManifest(ctx, p.Client, wc, result.ManifestURL, outputFolder, "dpla_"+sanitizeID(result.SourceID), p.Opts)
}
