// iiif.go centralises IIIF Presentation manifest parsing shared by every
// provider adapter, grounded on original_source's api/iiif.py.
package providers

import (
	"encoding/json"
	"strings"
)

// ImageServiceBases extracts IIIF Image API service base URIs from a
// manifest, supporting both Presentation API v2
// (sequences[].canvases[].images[].resource.service) and v3
// (items[].items[].items[].body.service) shapes.
func ImageServiceBases(manifest map[string]interface{}) []string {
	var bases []string

	if sequences, ok := manifest["sequences"].([]interface{}); ok {
		for _, seqRaw := range sequences {
			seq, _ := seqRaw.(map[string]interface{})
			canvases, _ := seq["canvases"].([]interface{})
			for _, canvasRaw := range canvases {
				canvas, _ := canvasRaw.(map[string]interface{})
				images, _ := canvas["images"].([]interface{})
				for _, imgRaw := range images {
					img, _ := imgRaw.(map[string]interface{})
					resource, _ := img["resource"].(map[string]interface{})
					if base := serviceID(resource["service"]); base != "" {
						bases = append(bases, base)
					}
				}
			}
		}
	}

	if items, ok := manifest["items"].([]interface{}); ok {
		for _, canvasRaw := range items {
			canvas, _ := canvasRaw.(map[string]interface{})
			annoPages, _ := canvas["items"].([]interface{})
			for _, pageRaw := range annoPages {
				page, _ := pageRaw.(map[string]interface{})
				annos, _ := page["items"].([]interface{})
				for _, annoRaw := range annos {
					anno, _ := annoRaw.(map[string]interface{})
					body, _ := anno["body"].(map[string]interface{})
					if base := serviceID(body["service"]); base != "" {
						bases = append(bases, base)
					}
				}
			}
		}
	}
	return bases
}

func serviceID(service interface{}) string {
	switch v := service.(type) {
	case map[string]interface{}:
		if id, ok := v["@id"].(string); ok {
			return id
		}
		if id, ok := v["id"].(string); ok {
			return id
		}
	case []interface{}:
		for _, entry := range v {
			if id := serviceID(entry); id != "" {
				return id
			}
		}
	}
	return ""
}

// Rendering is one manifest-level pointer to a whole-item file.
type Rendering struct {
	URL    string
	Format string
}

// Renderings extracts the top-level "rendering" array from a manifest,
// filtered to the given mime whitelist (e.g. "pdf", "epub").
func Renderings(manifest map[string]interface{}, mimeWhitelist []string) []Rendering {
	raw, ok := manifest["rendering"]
	if !ok {
		return nil
	}
	var entries []interface{}
	switch v := raw.(type) {
	case []interface{}:
		entries = v
	case map[string]interface{}:
		entries = []interface{}{v}
	}
	var out []Rendering
	for _, entryRaw := range entries {
		entry, _ := entryRaw.(map[string]interface{})
		id, _ := entry["@id"].(string)
		if id == "" {
			id, _ = entry["id"].(string)
		}
		format, _ := entry["format"].(string)
		if id == "" {
			continue
		}
		if len(mimeWhitelist) > 0 && !matchesWhitelist(format, id, mimeWhitelist) {
			continue
		}
		out = append(out, Rendering{URL: id, Format: format})
	}
	return out
}

func matchesWhitelist(format, url string, whitelist []string) bool {
	lf := strings.ToLower(format)
	lu := strings.ToLower(url)
	for _, w := range whitelist {
		w = strings.ToLower(w)
		if strings.Contains(lf, w) || strings.HasSuffix(lu, "."+w) {
			return true
		}
	}
	return false
}

// ImageFullURL builds a IIIF Image API full-image request URL for a service
// base, using the conventional full/full/0/default.jpg suffix.
func ImageFullURL(serviceBase string) string {
	return strings.TrimRight(serviceBase, "/") + "/full/full/0/default.jpg"
}

// ParseManifest unmarshals a raw manifest byte slice into a generic map.
func ParseManifest(raw []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
