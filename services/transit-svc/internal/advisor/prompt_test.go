package advisor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal/pkg/apperror"
	"multimodal/pkg/domain"
)

const sampleReply = `1. Consideration: Optimal solution

2. Route: [Shanghai -> Singapore] by [Sea]

3. Cost: $550

4. Time: 336 hours

5. Carbon Footprint: 650.2 kg

6. Evaluation: Best balance of cost, time and carbon footprint.
---
1. Consideration: Time-saving

2. Route: [Shanghai -> Hong Kong -> Singapore] by [Air, Air]

3. Cost: $4,314

4. Time: 15 hours

5. Carbon Footprint: 168 kg

6. Evaluation: Fast.
---
Sorry, I cannot suggest an environmentally friendly option.
---
`

func TestBuildPrompt(t *testing.T) {
	network, err := domain.NewNetworkFromDataset(domain.MustDefaultDataset())
	require.NoError(t, err)
	req := NewRequest("Shanghai", "Singapore", network.FindAllSimplePaths("Shanghai", "Singapore"))

	prompt, err := BuildPrompt(req)
	require.NoError(t, err)
	assert.Contains(t, prompt, "We need to transport goods from Shanghai to Singapore.")
	assert.Contains(t, prompt, "separate each solution with '---'")
	assert.Contains(t, prompt, `"route":"Shanghai -> Singapore","modes":"Sea","totalCost":550,"totalTime":336,"totalEnvironment":60`)
}

func TestParseReply(t *testing.T) {
	solutions, err := ParseReply(sampleReply)
	require.NoError(t, err)
	require.Len(t, solutions, 3)

	first := solutions[0]
	assert.Equal(t, ConsiderationOptimal, first.Consideration)
	assert.Equal(t, []string{"Shanghai", "Singapore"}, first.Route)
	assert.Equal(t, []domain.Mode{domain.ModeSea}, first.Modes)
	assert.Equal(t, 550.0, first.Cost)
	assert.Equal(t, 336.0, first.Time)
	assert.Equal(t, 650.2, first.EnvironmentalImpact)
	assert.Equal(t, "Best balance of cost, time and carbon footprint.", first.Comment)

	second := solutions[1]
	assert.Equal(t, ConsiderationFastest, second.Consideration)
	assert.Equal(t, 4314.0, second.Cost)
	assert.Equal(t, []domain.Mode{domain.ModeAir, domain.ModeAir}, second.Modes)

	free := solutions[2]
	assert.Equal(t, ConsiderationUnparsed, free.Consideration)
	assert.Empty(t, free.Route)
	assert.True(t, strings.HasPrefix(free.Text, "Sorry"))
}

func TestParseReply_Empty(t *testing.T) {
	_, err := ParseReply(" --- \n---")
	assert.True(t, apperror.Is(err, apperror.CodeAdvisorMalformed))
	assert.Equal(t, MsgNoAnalysis, FailureMessage(err))
}

func TestFormatSolution_ParsesBack(t *testing.T) {
	s := Solution{
		Consideration:       ConsiderationEco,
		Route:               []string{"Tokyo", "Hong Kong"},
		Modes:               []domain.Mode{domain.ModeSea},
		Cost:                1500,
		Time:                180,
		EnvironmentalImpact: 70,
		Comment:             "Lowest footprint.",
	}
	s.Text = FormatSolution(s)

	parsed, err := ParseReply(s.Text)
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, s, parsed[0])
}

func TestParseConsideration(t *testing.T) {
	assert.Equal(t, ConsiderationOptimal, ParseConsideration("Optimal solution"))
	assert.Equal(t, ConsiderationCost, ParseConsideration("Cost-efficient"))
	assert.Equal(t, ConsiderationFastest, ParseConsideration("Time-saving"))
	assert.Equal(t, ConsiderationEco, ParseConsideration("Environmentally friendly"))
	assert.Equal(t, ConsiderationUnparsed, ParseConsideration("Scenic"))
}

func TestFailureMessage(t *testing.T) {
	assert.Empty(t, FailureMessage(nil))
	assert.Equal(t, MsgAnalysisFailed, FailureMessage(apperror.ErrAdvisorUnavailable))
	assert.Equal(t, MsgNoAnalysis, FailureMessage(ErrDisabled))
	assert.Equal(t, MsgNoAnalysis, FailureMessage(apperror.New(apperror.CodeAdvisorMalformed, "bad reply")))
}
