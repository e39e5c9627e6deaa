package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/extraction/reconcile"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Options{Clock: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return e
}

func findMed(t *testing.T, snap entities.OrdersSnapshot, name string) entities.MedicationOrder {
	t.Helper()
	for _, m := range snap.Medications {
		if m.DrugName == name {
			return m
		}
	}
	require.Failf(t, "medication not found", "%s in %+v", name, snap.Medications)
	return entities.MedicationOrder{}
}

func findLab(t *testing.T, snap entities.OrdersSnapshot, name string) entities.LabOrder {
	t.Helper()
	for _, l := range snap.Labs {
		if l.TestName == name {
			return l
		}
	}
	require.Failf(t, "lab not found", "%s in %+v", name, snap.Labs)
	return entities.LabOrder{}
}

func existing(name string, status entities.OrderStatus, dose float64) entities.MedicationOrder {
	return entities.MedicationOrder{
		ID:         reconcile.EntityID("medication", entities.CanonicalKey(name)),
		DrugName:   name,
		Dosage:     entities.Dosage{Value: dose, Unit: "mg"},
		Frequency:  "once daily",
		Route:      entities.DefaultRoute,
		Status:     status,
		RawText:    "start " + name,
		Confidence: 0.85,
	}
}

func TestExtract_EndToEnd(t *testing.T) {
	e := newTestEngine(t)
	snap := e.Extract("Start Metformin 500mg twice daily. Order a fasting lipid panel and CBC for tomorrow, STAT the CBC.", entities.OrdersSnapshot{})

	require.Len(t, snap.Medications, 1)
	med := snap.Medications[0]
	assert.Equal(t, "Metformin", med.DrugName)
	assert.Equal(t, entities.Dosage{Value: 500, Unit: "mg"}, med.Dosage)
	assert.Equal(t, "twice daily", med.Frequency)
	assert.Equal(t, "PO", med.Route)
	assert.Equal(t, entities.OrderStatusNew, med.Status)
	assert.NotEmpty(t, med.ID)

	require.Len(t, snap.Labs, 2)
	lipid := findLab(t, snap, "Lipid Panel")
	assert.Equal(t, entities.UrgencyRoutine, lipid.Urgency)
	assert.True(t, lipid.Fasting)
	assert.Equal(t, "Tomorrow", lipid.OrderDate)

	cbc := findLab(t, snap, "CBC")
	assert.Equal(t, entities.UrgencyStat, cbc.Urgency)
	assert.Equal(t, entities.DateStat, cbc.OrderDate)
	assert.False(t, cbc.Fasting)

	assert.Equal(t, fixedNow, snap.LastUpdated)
}

func TestExtract_SpelledNumbers(t *testing.T) {
	e := newTestEngine(t)
	snap := e.Extract("start metformin five hundred milligrams twice a day", entities.OrdersSnapshot{})

	med := findMed(t, snap, "Metformin")
	assert.Equal(t, entities.Dosage{Value: 500, Unit: "mg"}, med.Dosage)
	assert.Equal(t, "twice daily", med.Frequency)
}

func TestExtract_StatusTransition(t *testing.T) {
	e := newTestEngine(t)
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{existing("Metformin", entities.OrderStatusNew, 500)}}

	snap := e.Extract("stop metformin", previous)

	require.Len(t, snap.Medications, 1)
	got := snap.Medications[0]
	assert.Equal(t, entities.OrderStatusCancelled, got.Status)
	assert.Equal(t, previous.Medications[0].Dosage, got.Dosage)
	assert.Equal(t, previous.Medications[0].Frequency, got.Frequency)
	assert.Equal(t, "stop metformin", got.RawText)
}

func TestExtract_Decomposition(t *testing.T) {
	e := newTestEngine(t)
	snap := e.Extract("order hemoglobin A1C lipid panel and CMP", entities.OrdersSnapshot{})

	require.Len(t, snap.Labs, 3)
	assert.Equal(t, "Hemoglobin A1C", snap.Labs[0].TestName)
	assert.Equal(t, "Lipid Panel", snap.Labs[1].TestName)
	assert.Equal(t, "CMP", snap.Labs[2].TestName)
	for _, l := range snap.Labs {
		assert.Equal(t, entities.OrderStatusNew, l.Status)
		assert.Equal(t, entities.DateRoutine, l.OrderDate)
	}
}

func TestExtract_FalsePositiveSuppression(t *testing.T) {
	e := newTestEngine(t)
	snap := e.Extract("his cholesterol was fine, nothing to order", entities.OrdersSnapshot{})

	assert.Empty(t, snap.Labs)
	assert.Empty(t, snap.Medications)
}

func TestExtract_LabWordIsNotADrug(t *testing.T) {
	e := newTestEngine(t)
	snap := e.Extract("Order a cholesterol panel and start metformin 500mg daily.", entities.OrdersSnapshot{})

	require.Len(t, snap.Medications, 1)
	assert.Equal(t, "Metformin", snap.Medications[0].DrugName)
	require.Len(t, snap.Labs, 1)
	assert.Equal(t, "Lipid Panel", snap.Labs[0].TestName)
}

func TestExtract_LabAfterFor(t *testing.T) {
	e := newTestEngine(t)
	snap := e.Extract("Order labs for A1C today.", entities.OrdersSnapshot{})

	require.Len(t, snap.Labs, 1)
	a1c := findLab(t, snap, "Hemoglobin A1C")
	assert.Equal(t, "Today", a1c.OrderDate)
}

func TestExtract_LabNotesAndLocation(t *testing.T) {
	e := newTestEngine(t)
	snap := e.Extract("Check a CBC to rule out anemia at Quest.", entities.OrdersSnapshot{})

	cbc := findLab(t, snap, "CBC")
	assert.Equal(t, "Rule out anemia", cbc.Notes)
	assert.Equal(t, "Quest Diagnostics", cbc.Location)
}

func TestExtract_BulkRefill(t *testing.T) {
	e := newTestEngine(t)
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{
		existing("Metformin", entities.OrderStatusNew, 500),
		existing("Lisinopril", entities.OrderStatusCancelled, 10),
	}}

	snap := e.Extract("refill both medications", previous)

	require.Len(t, snap.Medications, 2)
	assert.Equal(t, entities.OrderStatusNew, findMed(t, snap, "Metformin").Status)
	assert.Equal(t, entities.OrderStatusNew, findMed(t, snap, "Lisinopril").Status)
}

func TestExtract_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	transcripts := []string{
		"Start Metformin 500mg twice daily. Order a fasting lipid panel and CBC for tomorrow, STAT the CBC.",
		"Start lisinopril 10mg daily. Actually stop the lisinopril. Refill all medications.",
		"Increase atorvastatin to 40mg at bedtime and check a CMP in 3 months.",
	}
	base := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{existing("Atorvastatin", entities.OrderStatusNew, 20)}}

	for _, transcript := range transcripts {
		t.Run(transcript, func(t *testing.T) {
			once := e.Extract(transcript, base)
			twice := e.Extract(transcript, once)
			assert.Equal(t, once, twice)
		})
	}
}

func TestExtract_StreamingGrowth(t *testing.T) {
	e := newTestEngine(t)
	first := e.Extract("Start metformin", entities.OrdersSnapshot{})
	require.Len(t, first.Medications, 1)
	assert.True(t, first.Medications[0].Dosage.IsZero())

	second := e.Extract("Start metformin 500mg twice daily", first)
	require.Len(t, second.Medications, 1)
	assert.Equal(t, entities.Dosage{Value: 500, Unit: "mg"}, second.Medications[0].Dosage)
	assert.Equal(t, "twice daily", second.Medications[0].Frequency)
	assert.Equal(t, first.Medications[0].ID, second.Medications[0].ID)
}

func TestRun_Diagnostics(t *testing.T) {
	e := newTestEngine(t)
	res := e.Run(context.Background(), "stop lisinopril", entities.OrdersSnapshot{}, fixedNow)

	assert.Empty(t, res.Snapshot.Medications)
	require.Len(t, res.Batch.Medications, 1)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, entities.DropAmbiguousCancellation, res.Dropped[0].Reason)
}

func TestCandidates_RefillContextDosage(t *testing.T) {
	e := newTestEngine(t)
	batch, _ := e.Candidates("He takes metformin 500mg. Refill metformin.")

	require.Len(t, batch.Medications, 2)
	refill := batch.Medications[1]
	assert.Equal(t, entities.CommandRefill, refill.Command)
	assert.True(t, refill.Dosage.IsZero())
	assert.Equal(t, entities.Dosage{Value: 500, Unit: "mg"}, refill.ContextDosage)
}

func TestCandidates_Attributes(t *testing.T) {
	e := newTestEngine(t)
	batch, _ := e.Candidates("Start amoxicillin 500mg three times a day for 10 days, dispense 30, no refills, send it to CVS.")

	require.Len(t, batch.Medications, 1)
	c := batch.Medications[0]
	assert.Equal(t, "Amoxicillin", c.DrugName)
	assert.Equal(t, "three times daily", c.Frequency)
	assert.Equal(t, "10 days", c.Duration)
	assert.Equal(t, "30", c.Quantity)
	require.NotNil(t, c.Refills)
	assert.Equal(t, 0, *c.Refills)
	assert.Equal(t, "CVS", c.Pharmacy)
}

func TestExtract_EmptyTranscript(t *testing.T) {
	e := newTestEngine(t)
	snap := e.Extract("", entities.OrdersSnapshot{})

	assert.NotNil(t, snap.Medications)
	assert.NotNil(t, snap.Labs)
	assert.Empty(t, snap.Medications)
}

func TestGuardrails_Limit(t *testing.T) {
	g := NewGuardrails(GuardrailConfig{MaxEntities: 2})
	batch := entities.CandidateBatch{
		Medications: []entities.MedicationCandidate{{DrugName: "A"}},
		Labs:        []entities.LabCandidate{{TestName: "CBC"}, {TestName: "TSH"}},
	}

	limited, dropped := g.Limit(batch)
	assert.Len(t, limited.Medications, 1)
	assert.Len(t, limited.Labs, 1)
	require.Len(t, dropped, 1)
	assert.Equal(t, "TSH", dropped[0].Name)
	assert.Equal(t, entities.DropEntityLimit, dropped[0].Reason)

	assert.False(t, g.ShouldKeep(0.4))
	assert.True(t, g.ShouldKeep(0.5))
}
