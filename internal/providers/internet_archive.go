// internet_archive.go adapts the Internet Archive Advanced Search and
// Metadata APIs to the uniform Provider contract, grounded on
// original_source's api/internet_archive_api.py.
package providers

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

const (
	iaSearchURL   = "https://archive.org/advancedsearch.php"
	iaMetadataURL = "https://archive.org/metadata/%s"
)

// InternetArchive implements Provider for archive.org.
type InternetArchive struct {
	Client *httpclient.Client
	Opts   ManifestDownloadOptions
	Budget *budget.Accountant
}

func (p *InternetArchive) Key() string     { return "internet_archive" }
func (p *InternetArchive) Display() string { return "Internet Archive" }

// Search queries the Advanced Search API for texts matching title/creator.
func (p *InternetArchive) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	queryParts := []string{fmt.Sprintf(`title:("%s")`, title)}
	if creator != "" {
		queryParts = append(queryParts, fmt.Sprintf(`creator:("%s")`, creator))
	}
	queryParts = append(queryParts, "mediatype:(texts)")

	params := url.Values{
		"q":      {strings.Join(queryParts, " AND ")},
		"fl[]":   {"identifier,title,creator,mediatype,year"},
		"rows":   {fmt.Sprintf("%d", maxResults)},
		"page":   {"1"},
		"output": {"json"},
	}
	res, err := p.Client.Request(ctx, iaSearchURL, params, nil, httpclient.ExpectJSON)
	if err != nil || res == nil || res.JSON == nil {
		return nil, err
	}

	response, _ := res.JSON["response"].(map[string]interface{})
	docs, _ := response["docs"].([]interface{})
	var results []model.SearchResult
	for _, docRaw := range docs {
		doc, _ := docRaw.(map[string]interface{})
		identifier, _ := doc["identifier"].(string)
		if identifier == "" {
			continue
		}
		t, _ := doc["title"].(string)
		var creatorStr string
		switch c := doc["creator"].(type) {
		case string:
			creatorStr = c
		case []interface{}:
			var parts []string
			for _, cc := range c {
				if s, ok := cc.(string); ok {
					parts = append(parts, s)
				}
			}
			creatorStr = strings.Join(parts, ", ")
		}
		results = append(results, model.SearchResult{
			ProviderDisplay: p.Display(),
			ProviderKey:     p.Key(),
			Title:           t,
			Creators:        []string{creatorStr},
			SourceID:        identifier,
			ItemURL:         fmt.Sprintf("https://archive.org/details/%s", identifier),
		})
	}
	return results, nil
}

// Download fetches item metadata and its IIIF manifest (or the conventional
// archivelab.org fallback); only when the manifest yields no content file
// does it fetch the item's cover/thumbnail image instead.
func (p *InternetArchive) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	identifier := result.SourceID
	if identifier == "" {
		return false, fmt.Errorf("internet_archive: no identifier in search result")
	}

	metaRes, err := p.Client.Request(ctx, fmt.Sprintf(iaMetadataURL, identifier), nil, nil, httpclient.ExpectJSON)
	if err != nil {
		return false, err
	}
	if metaRes == nil || metaRes.JSON == nil {
		return false, nil
	}
	_ = SaveJSON(metaRes.JSON, outputFolder, fmt.Sprintf("ia_%s_metadata", identifier), p.Budget, wc.WorkID)

	manifestURL := ""
	if misc, ok := metaRes.JSON["misc"].(map[string]interface{}); ok {
		if u, ok := misc["ia_iiif_url"].(string); ok {
			manifestURL = u
		}
	}
	if manifestURL == "" {
		manifestURL = fmt.Sprintf("https://iiif.archivelab.org/iiif/%s/manifest.json", identifier)
	}

	ok, derr := DownloadFromManifest(ctx, p.Client, wc, manifestURL, outputFolder, "ia_"+identifier, p.Opts)
	if derr != nil {
		return false, derr
	}
	if ok {
		return true, nil
	}

	if misc, got := metaRes.JSON["misc"].(map[string]interface{}); got {
		if img, ok := misc["image"].(string); ok && img != "" {
			coverURL := img
			if !strings.HasPrefix(coverURL, "http") {
				coverURL = "https://archive.org" + coverURL
			}
			if p.Budget == nil || p.Budget.AllowBytes(wc.WorkID, model.ClassImages, 0) {
				destPath := filepath.Join("objects", fmt.Sprintf("ia_%s_cover.jpg", identifier))
				n, derr := p.Client.DownloadFile(ctx, coverURL, outputFolder, destPath, "")
				if n > 0 && p.Budget != nil {
					p.Budget.AddBytes(wc.WorkID, model.ClassImages, n)
				}
				if derr == nil && n > 0 {
					return true, nil
				}
			}
		}
	}
	return false, nil
}
