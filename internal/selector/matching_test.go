package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenSetRatioIdenticalStrings(t *testing.T) {
	assert.Equal(t, 100.0, TokenSetRatio("The Great Work", "The Great Work"))
}

func TestTokenSetRatioIgnoresWordOrder(t *testing.T) {
	r := TokenSetRatio("Great Work The", "The Great Work")
	assert.Equal(t, 100.0, r)
}

func TestTokenSetRatioToleratesExtraWords(t *testing.T) {
	r := TokenSetRatio("The Great Work", "The Great Work: A Complete History")
	assert.Greater(t, r, 80.0)
}

func TestTokenSetRatioBothEmpty(t *testing.T) {
	assert.Equal(t, 100.0, TokenSetRatio("", ""))
}

func TestTokenSetRatioOneEmpty(t *testing.T) {
	assert.Equal(t, 0.0, TokenSetRatio("Something", ""))
}

func TestBestCreatorMatchPicksHighestAmongCandidates(t *testing.T) {
	r := BestCreatorMatch("Jane Doe", []string{"Someone Else", "Jane Doe"})
	assert.Equal(t, 100.0, r)
}

func TestBestCreatorMatchNoCandidates(t *testing.T) {
	assert.Equal(t, 0.0, BestCreatorMatch("Jane Doe", nil))
}
