// registry.go wires the nine fully-implemented providers into a Registry,
// with a host table covering both the live adapters and the remaining
// catalogued-but-unimplemented providers (British Library, MDZ, Wellcome,
// SLUB, SBB digital, Polona, BNE, HathiTrust, e-rara) so that C5's
// host->provider rate-limit/breaker lookup works even when those are added
// later as thin translators; the roster stops at eight search-backed
// providers plus direct-IIIF until demand justifies more.
package providers

import (
	"chronodownloader/internal/budget"
	"chronodownloader/internal/config"
	"chronodownloader/internal/httpclient"
)

// cataloguedHosts lists hosts for providers not yet given full adapters;
// kept here so the host->provider table is complete even though no
// Provider is registered for these keys.
var cataloguedHosts = map[string]string{
	"bl.uk":                    "british_library",
	"www.digitale-sammlungen.de": "mdz",
	"wellcomecollection.org":   "wellcome",
	"digital.slub-dresden.de":  "slub",
	"digital.staatsbibliothek-berlin.de": "sbb_digital",
	"polona.pl":                "polona",
	"www.bne.es":               "bne",
	"babel.hathitrust.org":     "hathitrust",
	"www.e-rara.ch":            "e_rara",
}

// Build constructs a Registry with all nine fully-implemented providers
// registered, each configured from cfg, plus quota wiring for the
// quota-limited provider and budget wiring for every download path.
func Build(cfg *config.Store, client *httpclient.Client, quota QuotaChecker, acct *budget.Accountant) *Registry {
	doc := cfg.Get()
	r := NewRegistry()

	optsFor := func(key string) ManifestDownloadOptions {
		return OptionsFromConfig(doc.Download, doc.MaxPages(key), acct)
	}

	r.Register(&InternetArchive{Client: client, Opts: optsFor("internet_archive"), Budget: acct}, "archive.org", "iiif.archivelab.org")
	r.Register(&Europeana{Client: client, Opts: optsFor("europeana")}, "api.europeana.eu")
	r.Register(&DPLA{Client: client, Opts: optsFor("dpla")}, "api.dp.la", "dp.la")
	r.Register(&DDB{Client: client, Opts: optsFor("ddb")}, "api.deutsche-digitale-bibliothek.de", "www.deutsche-digitale-bibliothek.de")
	r.Register(&GoogleBooks{Client: client, Budget: acct}, "www.googleapis.com", "books.google.com")
	r.Register(&BnfGallica{Client: client, Opts: optsFor("bnf_gallica")}, "gallica.bnf.fr")
	r.Register(&LOC{Client: client, Opts: optsFor("loc")}, "www.loc.gov", "loc.gov")
	r.Register(&AnnasArchive{Client: client, Quota: quota, Budget: acct}, "annas-archive.org")
	r.Register(&DirectIIIF{Client: client, Opts: optsFor("direct_iiif")})

	for host, key := range cataloguedHosts {
		if _, ok := r.byKey[key]; !ok {
			r.byHost[host] = key
		}
	}
	return r
}
