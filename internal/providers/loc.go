// loc.go adapts the Library of Congress JSON search API.
package providers

import (
	"context"
	"fmt"
	"net/url"

	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

const locSearchURL = "https://www.loc.gov/search/"

// LOC implements Provider for loc.gov.
type LOC struct {
	Client *httpclient.Client
	Opts   ManifestDownloadOptions
}

func (p *LOC) Key() string     { return "loc" }
func (p *LOC) Display() string { return "Library of Congress" }

func (p *LOC) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	q := title
	if creator != "" {
		q += " " + creator
	}
	params := url.Values{"q": {q}, "fo": {"json"}, "c": {fmt.Sprintf("%d", maxResults)}}
	res, err := p.Client.Request(ctx, locSearchURL, params, nil, httpclient.ExpectJSON)
	if err != nil || res == nil || res.JSON == nil {
		return nil, err
	}
	items, _ := res.JSON["results"].([]interface{})
	var out []model.SearchResult
	for _, itemRaw := range items {
		item, _ := itemRaw.(map[string]interface{})
		id, _ := item["id"].(string)
		t := firstString(item["title"])
		manifest := ""
		if iiif, ok := item["iiif_presentation"].(string); ok {
			manifest = iiif
		}
		out = append(out, model.SearchResult{
			ProviderDisplay: p.Display(), ProviderKey: p.Key(),
			Title: t, SourceID: id, ItemURL: id, ManifestURL: manifest,
		})
	}
	return out, nil
}

func (p *LOC) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	_ = SaveJSON(result, outputFolder, fmt.Sprintf("loc_%s_search_meta", sanitizeID(result.SourceID)), p.Opts.Budget, wc.WorkID)
	if result.ManifestURL == "" {
		return false, nil
	}
	return DownloadFromManifest(ctx, p.Client, wc, result.ManifestURL, outputFolder, "loc_"+sanitizeID(result.SourceID), p.Opts)
}
