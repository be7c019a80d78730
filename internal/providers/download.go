// download.go implements the shared content-acquisition sequence every
// manifest-driven provider follows: manifest renderings, then page-by-page
// IIIF image fetch. Providers with a direct content URL (Google Books, Anna's
// Archive) download it in their own adapter and do not use this sequence.
package providers

import (
	"context"
	"fmt"
	"path/filepath"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/config"
	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

// ManifestDownloadOptions configures the shared acquisition sequence.
type ManifestDownloadOptions struct {
	PreferPDFOverImages      bool
	DownloadManifestRenderings bool
	MaxRenderingsPerManifest int
	RenderingMimeWhitelist   []string
	MaxPages                 int
	Budget                   *budget.Accountant
}

// OptionsFromConfig builds ManifestDownloadOptions from the download
// settings block and a provider's resolved page cap.
func OptionsFromConfig(d config.DownloadSettings, maxPages int, acct *budget.Accountant) ManifestDownloadOptions {
	return ManifestDownloadOptions{
		PreferPDFOverImages:        d.PreferPDFOverImages,
		DownloadManifestRenderings: d.DownloadManifestRenderings,
		MaxRenderingsPerManifest:   d.MaxRenderingsPerManifest,
		RenderingMimeWhitelist:     d.RenderingMimeWhitelist,
		MaxPages:                   maxPages,
		Budget:                     acct,
	}
}

// budgetExhausted reports whether workID has no room left for cls, treating
// a nil accountant as unlimited.
func budgetExhausted(acct *budget.Accountant, workID string, cls model.ContentClass) bool {
	return acct != nil && !acct.AllowBytes(workID, cls, 0)
}

// allowAndAdd pre-checks that workID has room left in cls, performs
// download, and records the bytes it actually transferred against the
// accountant.
func allowAndAdd(acct *budget.Accountant, workID string, cls model.ContentClass, download func() (int64, error)) (bool, error) {
	if budgetExhausted(acct, workID, cls) {
		return false, nil
	}
	n, err := download()
	if n > 0 && acct != nil {
		acct.AddBytes(workID, cls, n)
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DownloadFromManifest fetches manifestURL, then tries renderings and
// falls back to page-by-page image service fetch, writing everything under
// outputFolder/objects/. Returns true if at least one content file landed.
func DownloadFromManifest(ctx context.Context, client *httpclient.Client, wc *workctx.WorkContext, manifestURL, outputFolder, filePrefix string, opts ManifestDownloadOptions) (bool, error) {
	res, err := client.Request(ctx, manifestURL, nil, nil, httpclient.ExpectJSON)
	if err != nil {
		return false, err
	}
	if res == nil || res.JSON == nil {
		return false, nil
	}

	gotRendering := false
	if opts.DownloadManifestRenderings {
		renderings := Renderings(res.JSON, opts.RenderingMimeWhitelist)
		max := opts.MaxRenderingsPerManifest
		if max <= 0 {
			max = 1
		}
		for i, r := range renderings {
			if i >= max {
				break
			}
			if budgetExhausted(opts.Budget, wc.WorkID, model.ClassPDFs) {
				break
			}
			destName := fmt.Sprintf("%s_rendering_%d%s", filePrefix, wc.NextFileSeq(), extFor(r.Format))
			kind := kindFor(r.Format)
			ok, _ := allowAndAdd(opts.Budget, wc.WorkID, model.ClassPDFs, func() (int64, error) {
				return client.DownloadFile(ctx, r.URL, outputFolder, filepath.Join("objects", destName), kind)
			})
			if ok {
				gotRendering = true
			}
		}
	}

	if gotRendering && opts.PreferPDFOverImages {
		return true, nil
	}

	bases := ImageServiceBases(res.JSON)
	downloadedAny := gotRendering
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = len(bases)
	}
	for i, base := range bases {
		if i >= maxPages {
			break
		}
		if budgetExhausted(opts.Budget, wc.WorkID, model.ClassImages) {
			break
		}
		url := ImageFullURL(base)
		destName := fmt.Sprintf("%s_page_%04d.jpg", filePrefix, wc.NextFileSeq())
		ok, _ := allowAndAdd(opts.Budget, wc.WorkID, model.ClassImages, func() (int64, error) {
			return client.DownloadFile(ctx, url, outputFolder, filepath.Join("objects", destName), "")
		})
		if ok {
			downloadedAny = true
		}
	}
	return downloadedAny, nil
}

func extFor(format string) string {
	switch {
	case containsAny(format, "pdf"):
		return ".pdf"
	case containsAny(format, "epub"):
		return ".epub"
	default:
		return ""
	}
}

func kindFor(format string) string {
	switch {
	case containsAny(format, "pdf"):
		return "pdf"
	case containsAny(format, "epub"):
		return "epub"
	default:
		return ""
	}
}

func containsAny(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if equalFold(s[i:i+len(substr)], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
