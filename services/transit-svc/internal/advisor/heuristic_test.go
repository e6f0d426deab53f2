package advisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal/pkg/domain"
)

func TestHeuristic_DefaultNetwork(t *testing.T) {
	advice, err := NewHeuristic().Advise(context.Background(), testRequest(t))
	require.NoError(t, err)
	require.Len(t, advice.Solutions, 4)

	for i, c := range Considerations() {
		assert.Equal(t, c, advice.Solutions[i].Consideration)
	}

	cheapest := advice.Solutions[1]
	assert.Equal(t, []string{"Shanghai", "Singapore"}, cheapest.Route)
	assert.Equal(t, []domain.Mode{domain.ModeSea}, cheapest.Modes)
	assert.Equal(t, 550.0, cheapest.Cost)

	fastest := advice.Solutions[2]
	assert.Equal(t, []domain.Mode{domain.ModeAir}, fastest.Modes)
	assert.Equal(t, 10.0, fastest.Time)

	eco := advice.Solutions[3]
	assert.Equal(t, 60.0, eco.EnvironmentalImpact)

	assert.Contains(t, cheapest.Text, "2. Route: [Shanghai -> Singapore] by [Sea]")
}

func TestHeuristic_SinglePath(t *testing.T) {
	req := Request{
		Origin:      "A",
		Destination: "B",
		Paths: []domain.PathSummary{{
			LocationSequence: []string{"A", "B"},
			ModeSequence:     []domain.Mode{domain.ModeLand},
			TotalCost:        10, TotalTime: 2, TotalEnvironment: 1,
		}},
	}
	advice, err := NewHeuristic().Advise(context.Background(), req)
	require.NoError(t, err)
	for _, s := range advice.Solutions {
		assert.Equal(t, []string{"A", "B"}, s.Route)
	}
}

func TestHeuristic_OptimalBalancesCriteria(t *testing.T) {
	req := Request{
		Origin:      "A",
		Destination: "C",
		Paths: []domain.PathSummary{
			{LocationSequence: []string{"A", "C"}, ModeSequence: []domain.Mode{domain.ModeSea}, TotalCost: 100, TotalTime: 100, TotalEnvironment: 100},
			{LocationSequence: []string{"A", "B", "C"}, ModeSequence: []domain.Mode{domain.ModeLand, domain.ModeLand}, TotalCost: 20, TotalTime: 20, TotalEnvironment: 20},
			{LocationSequence: []string{"A", "C"}, ModeSequence: []domain.Mode{domain.ModeAir}, TotalCost: 0, TotalTime: 100, TotalEnvironment: 100},
		},
	}
	advice, err := NewHeuristic().Advise(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, advice.Solutions[0].Route)
	assert.Equal(t, 0.0, advice.Solutions[1].Cost)
}

func TestHeuristic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHeuristic().Advise(ctx, testRequest(t))
	assert.ErrorIs(t, err, context.Canceled)
}
