package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/extraction"
)

func patternRunner(t *testing.T) *Runner {
	t.Helper()
	engine, err := extraction.NewEngine(extraction.Options{})
	require.NoError(t, err)
	return NewRunner(extraction.EnginePattern, PatternExtractor{Engine: engine})
}

func TestRunner_PatternEngine(t *testing.T) {
	fasting := true
	cases := []GoldenTranscript{
		{
			ID:         "mixed-1",
			Steps:      []string{"Start Metformin 500mg twice daily. Order a fasting lipid panel and CBC for tomorrow, STAT the CBC."},
			Category:   CategoryMixed,
			Difficulty: "medium",
			ExpectedMedications: []ExpectedMedication{
				{DrugName: "Metformin", Status: entities.OrderStatusNew, Dosage: "500mg"},
			},
			ExpectedLabs: []ExpectedLab{
				{TestName: "Lipid Panel", Status: entities.OrderStatusNew, Fasting: &fasting},
				{TestName: "CBC", Status: entities.OrderStatusNew, Urgency: entities.UrgencyStat},
			},
		},
		{
			ID:         "command-1",
			Steps:      []string{"Start lisinopril 10mg daily.", "Start lisinopril 10mg daily. Actually stop the lisinopril."},
			Category:   CategoryCommand,
			Difficulty: "easy",
			ExpectedMedications: []ExpectedMedication{
				{DrugName: "Lisinopril", Status: entities.OrderStatusCancelled},
			},
		},
		{
			ID:         "negative-1",
			Steps:      []string{"his cholesterol was fine, nothing to order"},
			Category:   CategoryNegative,
			Difficulty: "hard",
		},
	}

	summary, err := patternRunner(t).Run(context.Background(), cases)
	require.NoError(t, err)

	assert.Equal(t, extraction.EnginePattern, summary.Engine)
	assert.Equal(t, 3, summary.TotalCases)
	assert.Equal(t, 0, summary.FailedCases)
	assert.Equal(t, 3, summary.PerfectCases)
	assert.InDelta(t, 1.0, summary.AvgF1, 1e-9)
	assert.InDelta(t, 1.0, summary.AvgAttributeAccuracy, 1e-9)
	require.Len(t, summary.Results, 3)
	assert.Empty(t, summary.Results[0].Missing)
	assert.Empty(t, summary.Results[0].Unexpected)

	require.Contains(t, summary.ByDifficulty, "medium")
	assert.Equal(t, 1, summary.ByDifficulty["medium"].Count)
	require.Contains(t, summary.ByCategory, CategoryNegative)
	assert.InDelta(t, 1.0, summary.ByCategory[CategoryNegative].AvgPrecision, 1e-9)
}

func TestRunner_ReportsMisses(t *testing.T) {
	cases := []GoldenTranscript{{
		ID:         "miss",
		Steps:      []string{"Order a CBC."},
		Category:   CategoryLab,
		Difficulty: "easy",
		ExpectedLabs: []ExpectedLab{
			{TestName: "CBC", Status: entities.OrderStatusNew, Urgency: entities.UrgencyStat},
			{TestName: "CMP", Status: entities.OrderStatusNew},
		},
	}}

	summary, err := patternRunner(t).Run(context.Background(), cases)
	require.NoError(t, err)

	res := summary.Results[0]
	assert.InDelta(t, 1.0, res.Precision, 1e-9)
	assert.InDelta(t, 0.5, res.Recall, 1e-9)
	assert.Equal(t, []string{"lab:cmp"}, res.Missing)
	assert.InDelta(t, 0.0, res.AttributeAccuracy, 1e-9)
	assert.Equal(t, 0, summary.PerfectCases)
}

type failingExtractor struct{}

func (failingExtractor) Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) (extraction.Result, error) {
	return extraction.Result{}, errors.New("model unavailable")
}

func TestRunner_CountsFailures(t *testing.T) {
	cases := []GoldenTranscript{{ID: "f", Steps: []string{"Order a CBC."}, Category: CategoryLab, Difficulty: "easy"}}

	summary, err := NewRunner(extraction.EngineModel, failingExtractor{}).Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedCases)
	assert.Equal(t, "model unavailable", summary.Results[0].Error)
	assert.Equal(t, 0, summary.PerfectCases)
}

func TestRunner_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := patternRunner(t).Run(ctx, []GoldenTranscript{{ID: "x", Steps: []string{"a"}, Category: CategoryLab, Difficulty: "easy"}})
	assert.ErrorIs(t, err, context.Canceled)
}
