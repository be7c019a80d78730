// direct_iiif.go adapts rows that supply a direct IIIF manifest URL
// (work input's direct_manifest_url column) and therefore need no search
// step at all.
package providers

import (
	"context"
	"fmt"

	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

// DirectIIIF implements Provider for rows that already carry a manifest URL.
type DirectIIIF struct {
	Client *httpclient.Client
	Opts   ManifestDownloadOptions
}

func (p *DirectIIIF) Key() string     { return "direct_iiif" }
func (p *DirectIIIF) Display() string { return "Direct IIIF manifest" }

// Search is unused for this provider: the pipeline builds its single
// candidate directly from the work input's direct_manifest_url column
// (see CandidateFromManifestURL) rather than issuing a network search.
func (p *DirectIIIF) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	return nil, nil
}

// CandidateFromManifestURL builds the one candidate a direct-link row ever
// has, without any network round trip.
func CandidateFromManifestURL(title, creator, manifestURL string) model.SearchResult {
	return model.SearchResult{
		ProviderDisplay: (&DirectIIIF{}).Display(),
		ProviderKey:     (&DirectIIIF{}).Key(),
		Title:           title,
		Creators:        []string{creator},
		ManifestURL:     manifestURL,
	}
}

func (p *DirectIIIF) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	if result.ManifestURL == "" {
		return false, fmt.Errorf("direct_iiif: no manifest url")
	}
	return DownloadFromManifest(ctx, p.Client, wc, result.ManifestURL, outputFolder, "direct", p.Opts)
}
