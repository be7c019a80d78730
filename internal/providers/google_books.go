// google_books.go adapts the Google Books Volumes API. API-key gated via
// GOOGLE_BOOKS_API_KEY; omitted from the run when unset. Google Books has
// no IIIF manifest; it exposes a direct PDF/EPUB download link instead, so
// this adapter skips the manifest pipeline and downloads the access link
// directly when the volume reports a public-domain download.
package providers

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"chronodownloader/internal/budget"
	"chronodownloader/internal/httpclient"
	"chronodownloader/internal/model"
	"chronodownloader/internal/workctx"
)

const googleBooksSearchURL = "https://www.googleapis.com/books/v1/volumes"

// GoogleBooks implements Provider for books.google.com.
type GoogleBooks struct {
	Client *httpclient.Client
	Budget *budget.Accountant
}

func (p *GoogleBooks) Key() string     { return "google_books" }
func (p *GoogleBooks) Display() string { return "Google Books" }

func (p *GoogleBooks) Search(ctx context.Context, wc *workctx.WorkContext, title, creator string, maxResults int) ([]model.SearchResult, error) {
	key := os.Getenv("GOOGLE_BOOKS_API_KEY")
	if key == "" {
		return nil, nil
	}
	q := fmt.Sprintf("intitle:%s", title)
	if creator != "" {
		q += fmt.Sprintf("+inauthor:%s", creator)
	}
	params := url.Values{"q": {q}, "key": {key}, "maxResults": {fmt.Sprintf("%d", maxResults)}}
	res, err := p.Client.Request(ctx, googleBooksSearchURL, params, nil, httpclient.ExpectJSON)
	if err != nil || res == nil || res.JSON == nil {
		return nil, err
	}
	items, _ := res.JSON["items"].([]interface{})
	var out []model.SearchResult
	for _, itemRaw := range items {
		item, _ := itemRaw.(map[string]interface{})
		id, _ := item["id"].(string)
		vi, _ := item["volumeInfo"].(map[string]interface{})
		t := firstString(vi["title"])
		creatorStr := ""
		if authors, ok := vi["authors"].([]interface{}); ok && len(authors) > 0 {
			creatorStr = fmt.Sprintf("%v", authors[0])
		}
		ap, _ := item["accessInfo"].(map[string]interface{})
		pdf, _ := ap["pdf"].(map[string]interface{})
		downloadLink, _ := pdf["downloadLink"].(string)
		out = append(out, model.SearchResult{
			ProviderDisplay: p.Display(), ProviderKey: p.Key(),
			Title: t, Creators: []string{creatorStr}, SourceID: id,
			ItemURL:     fmt.Sprintf("https://books.google.com/books?id=%s", id),
			ManifestURL: downloadLink,
		})
	}
	return out, nil
}

func (p *GoogleBooks) Download(ctx context.Context, wc *workctx.WorkContext, result model.SearchResult, outputFolder string) (bool, error) {
	_ = SaveJSON(result, outputFolder, fmt.Sprintf("google_books_%s_search_meta", sanitizeID(result.SourceID)), p.Budget, wc.WorkID)
	if result.ManifestURL == "" {
		return false, nil
	}
	if p.Budget != nil && !p.Budget.AllowBytes(wc.WorkID, model.ClassPDFs, 0) {
		return false, nil
	}
	destName := fmt.Sprintf("google_books_%s.pdf", sanitizeID(result.SourceID))
	n, err := p.Client.DownloadFile(ctx, result.ManifestURL, outputFolder, filepath.Join("objects", destName), "pdf")
	if n > 0 && p.Budget != nil {
		p.Budget.AddBytes(wc.WorkID, model.ClassPDFs, n)
	}
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}
