package budget

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chronodownloader/internal/model"
)

func TestAllowBytesUnderCeiling(t *testing.T) {
	a := New(Limits{Total: map[model.ContentClass]int64{model.ClassPDFs: 1000}}, Skip)
	require.True(t, a.AllowBytes("w1", model.ClassPDFs, 500))
}

func TestAllowBytesRejectsOverGlobalCeiling(t *testing.T) {
	a := New(Limits{Total: map[model.ContentClass]int64{model.ClassPDFs: 1000}}, Skip)
	a.AddBytes("w1", model.ClassPDFs, 900)
	require.False(t, a.AllowBytes("w1", model.ClassPDFs, 200))
}

func TestAllowBytesRejectsOverPerWorkCeiling(t *testing.T) {
	a := New(Limits{PerWork: map[model.ContentClass]int64{model.ClassImages: 100}}, Skip)
	a.AddBytes("w1", model.ClassImages, 80)
	require.False(t, a.AllowBytes("w1", model.ClassImages, 50))
	require.True(t, a.AllowBytes("w2", model.ClassImages, 50)) // different work, own counter
}

func TestZeroLimitMeansUnlimited(t *testing.T) {
	a := New(Limits{}, Skip)
	require.True(t, a.AllowBytes("w1", model.ClassPDFs, 1<<40))
}

func TestStopPolicyTripsExhaustedAtGlobalCeiling(t *testing.T) {
	a := New(Limits{Total: map[model.ContentClass]int64{model.ClassPDFs: 100}}, Stop)
	require.False(t, a.Exhausted())
	a.AddBytes("w1", model.ClassPDFs, 100)
	require.True(t, a.Exhausted())
}

func TestSkipPolicyNeverTripsExhausted(t *testing.T) {
	a := New(Limits{Total: map[model.ContentClass]int64{model.ClassPDFs: 100}}, Skip)
	a.AddBytes("w1", model.ClassPDFs, 500)
	require.False(t, a.Exhausted())
}

func TestGlobalBytesSumsAcrossWorks(t *testing.T) {
	a := New(Limits{}, Skip)
	a.AddBytes("w1", model.ClassImages, 10)
	a.AddBytes("w2", model.ClassImages, 20)
	require.Equal(t, int64(30), a.GlobalBytes(model.ClassImages))
	require.Equal(t, int64(10), a.PerWorkBytes("w1", model.ClassImages))
}
