package netpolicy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	p := New(ProviderPolicy{FailureThreshold: 3, Cooldown: time.Hour})
	require.Equal(t, Closed, p.State("prov"))

	p.RecordFailure("prov")
	p.RecordFailure("prov")
	require.Equal(t, Closed, p.State("prov"))

	p.RecordFailure("prov")
	require.Equal(t, Open, p.State("prov"))
}

func TestBreakerRejectsAdmitWhileOpen(t *testing.T) {
	p := New(ProviderPolicy{FailureThreshold: 1, Cooldown: time.Hour})
	p.RecordFailure("prov")
	require.Equal(t, Open, p.State("prov"))

	err := p.Admit(context.Background(), "prov")
	require.ErrorIs(t, err, ErrBreakerOpen)
}

func TestBreakerHalfOpensAfterCooldownAndClosesOnSuccess(t *testing.T) {
	p := New(ProviderPolicy{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	p.RecordFailure("prov")
	require.Equal(t, Open, p.State("prov"))

	time.Sleep(15 * time.Millisecond)
	err := p.Admit(context.Background(), "prov")
	require.NoError(t, err)
	require.Equal(t, HalfOpen, p.State("prov"))

	p.RecordSuccess("prov")
	require.Equal(t, Closed, p.State("prov"))
}

func TestHalfOpenFailureReopensImmediately(t *testing.T) {
	p := New(ProviderPolicy{FailureThreshold: 5, Cooldown: 10 * time.Millisecond})
	p.RecordFailure("prov")
	p.RecordFailure("prov")
	time.Sleep(0) // still closed, below threshold

	// force into half-open by opening then waiting out cooldown
	for i := 0; i < 3; i++ {
		p.RecordFailure("prov")
	}
	require.Equal(t, Open, p.State("prov"))
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, p.Admit(context.Background(), "prov"))
	require.Equal(t, HalfOpen, p.State("prov"))

	p.RecordFailure("prov")
	require.Equal(t, Open, p.State("prov"))
}

func TestAdmitPacesRequests(t *testing.T) {
	p := New(ProviderPolicy{MinInterval: 20 * time.Millisecond, FailureThreshold: 5, Cooldown: time.Second})
	start := time.Now()
	require.NoError(t, p.Admit(context.Background(), "prov"))
	require.NoError(t, p.Admit(context.Background(), "prov"))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
