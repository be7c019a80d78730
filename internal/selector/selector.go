// selector.go implements scoring, thresholding, and ranking, grounded on
// original_source's main/selection.py score_candidate/attach_scores.
package selector

import (
	"sort"

	"chronodownloader/internal/config"
	"chronodownloader/internal/model"
)

// ScoreCandidate computes title/creator/boost/total scores for one
// candidate against the work's title/creator, per §4.3.
func ScoreCandidate(title, creator string, candidate model.SearchResult, creatorWeight float64) model.Scores {
	titleScore := TokenSetRatio(title, candidate.Title)
	creatorScore := BestCreatorMatch(creator, candidate.Creators)
	combined := titleScore*(1-creatorWeight) + creatorScore*creatorWeight

	boost := 0.0
	if candidate.ManifestURL != "" {
		boost += 3
	}
	if candidate.ItemURL != "" {
		boost += 0.5
	}
	return model.Scores{
		TitleScore:   titleScore,
		CreatorScore: creatorScore,
		Boost:        boost,
		Total:        combined + boost,
	}
}

// AttachScores scores every candidate in place (candidates[i].Scores).
func AttachScores(title, creator string, candidates []model.SearchResult, creatorWeight float64) {
	for i := range candidates {
		s := ScoreCandidate(title, creator, candidates[i], creatorWeight)
		candidates[i].Scores = &s
	}
}

// Ranked is one candidate with its provider priority, for ranking.
type Ranked struct {
	Candidate        model.SearchResult
	ProviderPriority int
	InsertionOrder    int
}

// Rank sorts candidates by (provider_priority, -total_score), tie-broken by
// original insertion order (stable sort preserves it).
func Rank(candidates []model.SearchResult, priority map[string]int) []Ranked {
	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		p, ok := priority[c.ProviderKey]
		if !ok {
			p = int(^uint(0) >> 1) // +infinity for unlisted providers
		}
		ranked[i] = Ranked{Candidate: c, ProviderPriority: p, InsertionOrder: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ProviderPriority != ranked[j].ProviderPriority {
			return ranked[i].ProviderPriority < ranked[j].ProviderPriority
		}
		ti, tj := 0.0, 0.0
		if ranked[i].Candidate.Scores != nil {
			ti = ranked[i].Candidate.Scores.Total
		}
		if ranked[j].Candidate.Scores != nil {
			tj = ranked[j].Candidate.Scores.Total
		}
		return ti > tj
	})
	return ranked
}

// PassesThreshold reports whether a candidate's title score clears the
// effective min_title_score (per-provider override, else selection default).
func PassesThreshold(candidate model.SearchResult, minTitleScore float64) bool {
	if candidate.Scores == nil {
		return false
	}
	return candidate.Scores.TitleScore >= minTitleScore
}

// EffectiveMinScore resolves the per-provider min_title_score override.
func EffectiveMinScore(doc *config.Document, providerKey string) float64 {
	ps := doc.ProviderSetting(providerKey)
	if ps.MinTitleScore > 0 {
		return ps.MinTitleScore
	}
	return doc.Selection.MinTitleScore
}

// SelectBest runs the collect-and-select strategy: it scores and ranks every
// candidate, and returns the first ranked candidate that clears its
// provider's threshold (nil if none) together with the full ranked list,
// which still holds the below-threshold candidates for the audit record.
func SelectBest(title, creator string, candidates []model.SearchResult, doc *config.Document) (best *model.SearchResult, ranked []Ranked) {
	AttachScores(title, creator, candidates, doc.Selection.CreatorWeight)

	priority := map[string]int{}
	for i, key := range doc.Selection.ProviderHierarchy {
		priority[key] = i
	}
	ranked = Rank(candidates, priority)

	for i := range ranked {
		min := EffectiveMinScore(doc, ranked[i].Candidate.ProviderKey)
		if PassesThreshold(ranked[i].Candidate, min) {
			c := ranked[i].Candidate
			return &c, ranked
		}
	}
	return nil, ranked
}
