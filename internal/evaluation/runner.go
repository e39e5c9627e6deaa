package evaluation

import (
	"context"
	"time"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/extraction"
	"github.com/zatekoja/clinicalorders/internal/infrastructure/observability"
)

// Extractor is one extraction engine under evaluation.
type Extractor interface {
	Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) (extraction.Result, error)
}

// PatternExtractor adapts the pattern engine, which never fails, to Extractor.
type PatternExtractor struct {
	Engine *extraction.Engine
}

func (p PatternExtractor) Run(ctx context.Context, transcript string, previous entities.OrdersSnapshot, at time.Time) (extraction.Result, error) {
	return p.Engine.Run(ctx, transcript, previous, at), nil
}

// Runner runs evaluation across a set of golden transcripts.
type Runner struct {
	engine    string
	extractor Extractor
}

func NewRunner(engine string, extractor Extractor) *Runner {
	return &Runner{engine: engine, extractor: extractor}
}

func (r *Runner) Run(ctx context.Context, cases []GoldenTranscript) (*EvalSummary, error) {
	summary := &EvalSummary{
		Engine:       r.engine,
		TotalCases:   len(cases),
		ByDifficulty: make(map[string]*GroupSummary),
		ByCategory:   make(map[Category]*GroupSummary),
		Results:      make([]EvalResult, 0, len(cases)),
	}

	for _, gc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := r.evaluate(ctx, gc)
		if result.Error != "" {
			observability.LoggerFromContext(ctx).Warn().
				Str("case", gc.ID).
				Str("error", result.Error).
				Msg("evaluation case failed")
		}
		r.updateSummary(summary, result)
	}

	r.finalizeSummary(summary)
	return summary, nil
}

func (r *Runner) evaluate(ctx context.Context, gc GoldenTranscript) EvalResult {
	result := EvalResult{
		CaseID:     gc.ID,
		Category:   gc.Category,
		Difficulty: gc.Difficulty,
	}

	snapshot := entities.OrdersSnapshot{
		Medications: []entities.MedicationOrder{},
		Labs:        []entities.LabOrder{},
	}
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	start := time.Now()
	for i, step := range gc.Steps {
		res, err := r.extractor.Run(ctx, step, snapshot, at.Add(time.Duration(i)*time.Second))
		if err != nil {
			result.Latency = time.Since(start)
			result.Error = err.Error()
			return result
		}
		snapshot = res.Snapshot
		result.Dropped += len(res.Dropped)
	}
	result.Latency = time.Since(start)

	expected, extracted := identities(gc, snapshot)
	result.Precision = Precision(expected, extracted)
	result.Recall = Recall(expected, extracted)
	result.F1 = F1(result.Precision, result.Recall)
	result.Missing = Difference(expected, extracted)
	result.Unexpected = Difference(extracted, expected)
	result.StatusAccuracy, result.AttributeAccuracy = fieldAccuracy(gc, snapshot)

	return result
}

func medicationKey(name string) string { return "medication:" + entities.CanonicalKey(name) }

func labKey(name string) string { return "lab:" + entities.CanonicalKey(name) }

func identities(gc GoldenTranscript, snapshot entities.OrdersSnapshot) (expected, extracted []string) {
	for _, m := range gc.ExpectedMedications {
		expected = append(expected, medicationKey(m.DrugName))
	}
	for _, l := range gc.ExpectedLabs {
		expected = append(expected, labKey(l.TestName))
	}
	for _, m := range snapshot.Medications {
		extracted = append(extracted, medicationKey(m.DrugName))
	}
	for _, l := range snapshot.Labs {
		extracted = append(extracted, labKey(l.TestName))
	}
	return expected, extracted
}

// fieldAccuracy compares status and labeled attributes of the expected orders that
// were extracted; missing orders are already counted by recall.
func fieldAccuracy(gc GoldenTranscript, snapshot entities.OrdersSnapshot) (status, attributes float64) {
	meds := make(map[string]entities.MedicationOrder, len(snapshot.Medications))
	for _, m := range snapshot.Medications {
		meds[medicationKey(m.DrugName)] = m
	}
	labs := make(map[string]entities.LabOrder, len(snapshot.Labs))
	for _, l := range snapshot.Labs {
		labs[labKey(l.TestName)] = l
	}

	var statusMatched, statusCompared, attrMatched, attrCompared int
	for _, want := range gc.ExpectedMedications {
		got, ok := meds[medicationKey(want.DrugName)]
		if !ok {
			continue
		}
		statusCompared++
		if got.Status == want.Status {
			statusMatched++
		}
		if want.Dosage != "" {
			attrCompared++
			if got.Dosage.String() == want.Dosage {
				attrMatched++
			}
		}
	}
	for _, want := range gc.ExpectedLabs {
		got, ok := labs[labKey(want.TestName)]
		if !ok {
			continue
		}
		statusCompared++
		if got.Status == want.Status {
			statusMatched++
		}
		if want.Urgency != "" {
			attrCompared++
			if got.Urgency == want.Urgency {
				attrMatched++
			}
		}
		if want.Fasting != nil {
			attrCompared++
			if got.Fasting == *want.Fasting {
				attrMatched++
			}
		}
	}

	return Accuracy(statusMatched, statusCompared), Accuracy(attrMatched, attrCompared)
}

func (r *Runner) updateSummary(s *EvalSummary, res EvalResult) {
	s.Results = append(s.Results, res)
	s.AvgLatency += res.Latency
	if res.Error != "" {
		s.FailedCases++
	}

	s.AvgPrecision += res.Precision
	s.AvgRecall += res.Recall
	s.AvgF1 += res.F1
	s.AvgStatusAccuracy += res.StatusAccuracy
	s.AvgAttributeAccuracy += res.AttributeAccuracy
	if res.Error == "" && res.F1 == 1.0 && res.StatusAccuracy == 1.0 {
		s.PerfectCases++
	}

	addToGroup(s.ByDifficulty, res.Difficulty, res)
	if _, ok := s.ByCategory[res.Category]; !ok {
		s.ByCategory[res.Category] = &GroupSummary{}
	}
	accumulate(s.ByCategory[res.Category], res)
}

func addToGroup(groups map[string]*GroupSummary, key string, res EvalResult) {
	if _, ok := groups[key]; !ok {
		groups[key] = &GroupSummary{}
	}
	accumulate(groups[key], res)
}

func accumulate(g *GroupSummary, res EvalResult) {
	g.Count++
	g.AvgPrecision += res.Precision
	g.AvgRecall += res.Recall
	g.AvgF1 += res.F1
}

func (r *Runner) finalizeSummary(s *EvalSummary) {
	if s.TotalCases > 0 {
		n := float64(s.TotalCases)
		s.AvgPrecision /= n
		s.AvgRecall /= n
		s.AvgF1 /= n
		s.AvgStatusAccuracy /= n
		s.AvgAttributeAccuracy /= n
		s.AvgLatency /= time.Duration(s.TotalCases)
	}

	for _, g := range s.ByDifficulty {
		finalizeGroup(g)
	}
	for _, g := range s.ByCategory {
		finalizeGroup(g)
	}
}

func finalizeGroup(g *GroupSummary) {
	if g.Count > 0 {
		n := float64(g.Count)
		g.AvgPrecision /= n
		g.AvgRecall /= n
		g.AvgF1 /= n
	}
}
