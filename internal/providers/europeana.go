// europeana.go adapts Europeana's REST Search API, grounded on
// original_source's api/europeana_api.py. Requires EUROPEANA_API_KEY; the
// provider is silently skipped (empty result, no error) when absent, per
// §6's "provider omitted from the run if missing" rule.
package providers

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

const europeanaSearchURL = "https://api.europeana.eu/record/v2/search.json"

// Europeana implements Provider for europeana.eu.
type Europeana struct {
	Client *httpclient.Client
	Opts   ManifestDownloadOptions
}

func (p *Europeana) Key() string     { return "europeana" }
func (p *Europeana) Display() string { return "Europeana" }

func (p *Europeana) apiKey() string { return os.Getenv("EUROPEANA_API_KEY") }

func (p *Europeana) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	key := p.apiKey()
	if key == "" {
		return nil, nil
	}
	queryParts := []string{fmt.Sprintf(`title:"%s"`, title)}
	if creator != "" {
		queryParts = append(queryParts, fmt.Sprintf(`AND who:"%s"`, creator))
	}
	queryParts = append(queryParts, `AND proxy_dc_type:"TEXT"`)

	params := url.Values{
		"wskey": {key},
		"query": {strings.Join(queryParts, " ")},
		"rows":  {fmt.Sprintf("%d", maxResults)},
	}
	res, err := p.Client.Request(ctx, europeanaSearchURL, params, nil, httpclient.ExpectJSON)
	if err != nil || res == nil || res.JSON == nil {
		return nil, err
	}
	if ok, _ := res.JSON["success"].(bool); !ok {
		return nil, nil
	}
	items, _ := res.JSON["items"].([]interface{})
	var results []model.SearchResult
	for _, itemRaw := range items {
		item, _ := itemRaw.(map[string]interface{})
		itemTitle := firstString(item["title"])
		creatorStr := "N/A"
		if dc, ok := item["dcCreator"].([]interface{}); ok && len(dc) > 0 {
			creatorStr = fmt.Sprintf("%v", dc[0])
		}
		manifest := findIIIFManifest(item)
		raw, _ := item["id"].(string)
		results = append(results, model.SearchResult{
			ProviderDisplay: p.Display(),
			ProviderKey:     p.Key(),
			Title:           itemTitle,
			Creators:        []string{creatorStr},
			SourceID:        raw,
			ManifestURL:     manifest,
			ItemURL:         fmt.Sprintf("%v", item["guid"]),
		})
	}
	return results, nil
}

func firstString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return "N/A"
}

func findIIIFManifest(item map[string]interface{}) string {
	if cho, ok := item["edmAggregatedCHO"].(map[string]interface{}); ok {
		views := cho["hasView"]
		list, ok := views.([]interface{})
		if !ok && views != nil {
			list = []interface{}{views}
		}
		for _, v := range list {
			switch vv := v.(type) {
			case string:
				if strings.Contains(vv, "iiif") && strings.Contains(vv, "manifest") {
					return vv
				}
			case map[string]interface{}:
				if id, ok := vv["@id"].(string); ok && strings.Contains(id, "iiif") && strings.Contains(id, "manifest") {
					return id
				}
			}
		}
	}
	if obj, ok := item["object"].(string); ok && strings.Contains(obj, "iiif") && strings.Contains(obj, "manifest") {
		return obj
	}
	return ""
}

func (p *Europeana) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	itemID := result.SourceID
	if itemID == "" {
		itemID = result.Title
	}
	if itemID == "" {
		itemID = "unknown_item"
	}
	_ = SaveJSON(result, outputFolder, fmt.Sprintf("europeana_%s_search_meta", sanitizeID(itemID)), p.Opts.Budget, wc.WorkID)

	if result.ManifestURL == "" {
		return false, nil
	}
	return DownloadFromManifest(ctx, p.Client, wc, result.ManifestURL, outputFolder, "europeana_"+sanitizeID(itemID), p.Opts)
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
