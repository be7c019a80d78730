// bnf_gallica.go adapts the Bibliothèque nationale de France's Gallica SRU
// search endpoint and IIIF manifest service.
package providers

import (
	"context"
	"fmt"
	"net/url"

	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

const gallicaSRUURL = "https://gallica.bnf.fr/SRU"

// BnfGallica implements Provider for gallica.bnf.fr.
type BnfGallica struct {
	Client *httpclient.Client
	Opts   ManifestDownloadOptions
}

func (p *BnfGallica) Key() string     { return "bnf_gallica" }
func (p *BnfGallica) Display() string { return "Gallica (BnF)" }

func (p *BnfGallica) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	query := fmt.Sprintf(`gallica all "%s"`, title)
	if creator != "" {
		query += fmt.Sprintf(` and gallica all "%s"`, creator)
	}
	params := url.Values{
		"operation":      {"searchRetrieve"},
		"version":        {"1.2"},
		"query":          {query},
		"maximumRecords": {fmt.Sprintf("%d", maxResults)},
	}
	res, err := p.Client.Request(ctx, gallicaSRUURL, params, nil, httpclient.ExpectText)
	if err != nil || res == nil {
		return nil, err
	}
	// Gallica's SRU endpoint responds with XML; extracting the ark identifiers
	// from the raw text is enough to build candidates without a full SRU
	// record parser, which is out of scope per §1's non-goal on provider
	// wire-format parsing beyond the uniform contract.
	arks := extractArks(res.Text, maxResults)
	var out []model.SearchResult
	for _, ark := range arks {
		out = append(out, model.SearchResult{
			ProviderDisplay: p.Display(), ProviderKey: p.Key(),
			Title: title, SourceID: ark,
			ItemURL:     fmt.Sprintf("https://gallica.bnf.fr/%s", ark),
			ManifestURL: fmt.Sprintf("https://gallica.bnf.fr/iiif/%s/manifest.json", ark),
		})
	}
	return out, nil
}

func extractArks(text string, max int) []string {
	var arks []string
	marker := "ark:/12148/"
	for i := 0; i < len(text) && len(arks) < max; {
		idx := indexFrom(text, marker, i)
		if idx < 0 {
			break
		}
		end := idx + len(marker)
		for end < len(text) && isArkChar(text[end]) {
			end++
		}
		arks = append(arks, text[idx:end])
		i = end
	}
	return dedupe(arks)
}

func indexFrom(s, sub string, from int) int {
	if from >= len(s) {
		return -1
	}
	rel := indexOf(s[from:], sub)
	if rel < 0 {
		return -1
	}
	return from + rel
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func isArkChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '/' || c == ':'
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (p *BnfGallica) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	_ = SaveJSON(result, outputFolder, fmt.Sprintf("gallica_%s_search_meta", sanitizeID(result.SourceID)), p.Opts.Budget, wc.WorkID)
	if result.ManifestURL == "" {
		return false, nil
	}
	return DownloadFromManifest(ctx, p.Client, wc, result.ManifestURL, outputFolder, "gallica_"+sanitizeID(result.SourceID), p.Opts)
}
