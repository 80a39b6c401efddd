package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vellum-io/vellum/pkg/kind"
)

func TestPoolRotatesEndpoints(t *testing.T) {
	p := NewPool([]string{"e1", "e2", "e3"}, 3, time.Minute)

	var got []string
	for i := 0; i < 4; i++ {
		e, err := p.Next()
		require.NoError(t, err)
		got = append(got, e)
	}
	assert.Equal(t, []string{"e1", "e2", "e3", "e1"}, got)
}

func TestPoolFailoverWithinCooldown(t *testing.T) {
	// Two endpoints, threshold 1: one failure on e1 pins rotation to e2
	// until the cooldown elapses.
	p := NewPool([]string{"e1", "e2"}, 1, time.Minute)

	first, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, "e1", first)
	p.ReportFailure(first)

	second, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "e2", second)
	p.ReportSuccess(second)

	third, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "e2", third)
}

func TestPoolExcludesUntilCooldownElapses(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	p := NewPool([]string{"e1", "e2"}, 2, time.Minute)
	p.now = func() time.Time { return now }

	e, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, "e1", e)
	p.ReportFailure("e1")
	p.ReportFailure("e1")

	for i := 0; i < 3; i++ {
		e, err := p.Next()
		require.NoError(t, err)
		assert.Equal(t, "e2", e)
	}

	now = now.Add(61 * time.Second)
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		e, err := p.Next()
		require.NoError(t, err)
		seen[e] = true
	}
	assert.True(t, seen["e1"], "endpoint should rejoin rotation after cooldown")
}

func TestPoolSuccessResetsFailures(t *testing.T) {
	p := NewPool([]string{"e1"}, 2, time.Hour)

	p.ReportFailure("e1")
	p.ReportSuccess("e1")
	p.ReportFailure("e1")

	e, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "e1", e)
}

func TestPoolAllUnhealthy(t *testing.T) {
	p := NewPool([]string{"e1", "e2"}, 1, time.Hour)
	p.ReportFailure("e1")
	p.ReportFailure("e2")

	_, err := p.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind.ErrBackendUnavailable)
}

func TestPoolNoEndpointsUsesUnnamedSlot(t *testing.T) {
	p := NewPool(nil, 1, time.Hour)

	e, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, "", e)

	p.ReportFailure("")
	_, err = p.Next()
	assert.ErrorIs(t, err, kind.ErrBackendUnavailable)
}
