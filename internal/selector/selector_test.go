package selector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chronodownloader/internal/config"
	"chronodownloader/internal/model"
)

func TestRankOrdersByProviderPriorityThenScore(t *testing.T) {
	candidates := []model.SearchResult{
		{ProviderKey: "low_priority", Title: "match", Scores: &model.Scores{Total: 99}},
		{ProviderKey: "high_priority", Title: "match", Scores: &model.Scores{Total: 10}},
	}
	priority := map[string]int{"high_priority": 0, "low_priority": 1}

	ranked := Rank(candidates, priority)
	require.Equal(t, "high_priority", ranked[0].Candidate.ProviderKey)
	require.Equal(t, "low_priority", ranked[1].Candidate.ProviderKey)
}

func TestRankOrdersByScoreWithinSamePriority(t *testing.T) {
	candidates := []model.SearchResult{
		{ProviderKey: "p", SourceID: "weak", Scores: &model.Scores{Total: 10}},
		{ProviderKey: "p", SourceID: "strong", Scores: &model.Scores{Total: 90}},
	}
	ranked := Rank(candidates, map[string]int{"p": 0})
	require.Equal(t, "strong", ranked[0].Candidate.SourceID)
}

func TestRankPlacesUnlistedProvidersLast(t *testing.T) {
	candidates := []model.SearchResult{
		{ProviderKey: "unlisted", Scores: &model.Scores{Total: 100}},
		{ProviderKey: "listed", Scores: &model.Scores{Total: 1}},
	}
	ranked := Rank(candidates, map[string]int{"listed": 0})
	require.Equal(t, "listed", ranked[0].Candidate.ProviderKey)
	require.Equal(t, "unlisted", ranked[1].Candidate.ProviderKey)
}

func TestSelectBestReturnsNilWhenNoneClearThreshold(t *testing.T) {
	doc := &config.Document{
		ProviderSettings: map[string]config.ProviderSettings{},
		Selection:        config.SelectionSettings{MinTitleScore: 95, CreatorWeight: 0.3},
	}
	candidates := []model.SearchResult{{ProviderKey: "p", Title: "completely unrelated text"}}
	best, ranked := SelectBest("The Great Work", "Jane Doe", candidates, doc)
	require.Nil(t, best)
	require.Len(t, ranked, 1)
}

func TestSelectBestReturnsFirstPassingCandidate(t *testing.T) {
	doc := &config.Document{
		ProviderSettings: map[string]config.ProviderSettings{},
		Selection:        config.SelectionSettings{MinTitleScore: 50, CreatorWeight: 0.3},
	}
	candidates := []model.SearchResult{{ProviderKey: "p", Title: "The Great Work", Creators: []string{"Jane Doe"}}}
	best, _ := SelectBest("The Great Work", "Jane Doe", candidates, doc)
	require.NotNil(t, best)
	require.Equal(t, "p", best.ProviderKey)
}
