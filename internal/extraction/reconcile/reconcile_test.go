package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

var at = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func med(name string, status entities.OrderStatus, dose float64) entities.MedicationOrder {
	return entities.MedicationOrder{
		ID:         EntityID(kindMedication, entities.CanonicalKey(name)),
		DrugName:   name,
		Dosage:     entities.Dosage{Value: dose, Unit: "mg"},
		Frequency:  entities.DefaultFrequency,
		Route:      entities.DefaultRoute,
		Status:     status,
		RawText:    "start " + name,
		Confidence: 0.85,
	}
}

func candidate(cmd entities.CommandKind, name string, pos int) entities.MedicationCandidate {
	return entities.MedicationCandidate{
		Command:    cmd,
		DrugName:   name,
		RawText:    string(cmd) + " " + name,
		Confidence: 0.9,
		Position:   pos,
	}
}

func TestReconcile_CancelFlipsStatus(t *testing.T) {
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{med("Metformin", entities.OrderStatusNew, 500)}}
	batch := entities.CandidateBatch{Medications: []entities.MedicationCandidate{
		{Command: entities.CommandCancel, DrugName: "Metformin", RawText: "stop metformin", Confidence: 0.9},
	}}

	res := Reconcile(batch, previous, at)

	require.Len(t, res.Snapshot.Medications, 1)
	got := res.Snapshot.Medications[0]
	assert.Equal(t, entities.OrderStatusCancelled, got.Status)
	assert.Equal(t, entities.Dosage{Value: 500, Unit: "mg"}, got.Dosage)
	assert.Equal(t, "stop metformin", got.RawText)
	assert.Equal(t, previous.Medications[0].ID, got.ID)
	assert.Equal(t, at, res.Snapshot.LastUpdated)

	assert.Equal(t, entities.OrderStatusNew, previous.Medications[0].Status, "previous snapshot must not be mutated")
}

func TestReconcile_CancelWithoutOrderIsDropped(t *testing.T) {
	batch := entities.CandidateBatch{Medications: []entities.MedicationCandidate{candidate(entities.CommandCancel, "Lisinopril", 0)}}
	res := Reconcile(batch, entities.OrdersSnapshot{}, at)

	assert.Empty(t, res.Snapshot.Medications)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, entities.DropAmbiguousCancellation, res.Dropped[0].Reason)
}

func TestReconcile_ModifyWithoutOrderInserts(t *testing.T) {
	c := candidate(entities.CommandModify, "Lisinopril", 0)
	c.Dosage = entities.Dosage{Value: 20, Unit: "mg"}
	res := Reconcile(entities.CandidateBatch{Medications: []entities.MedicationCandidate{c}}, entities.OrdersSnapshot{}, at)

	require.Len(t, res.Snapshot.Medications, 1)
	assert.Equal(t, entities.OrderStatusModified, res.Snapshot.Medications[0].Status)
	assert.Equal(t, 20.0, res.Snapshot.Medications[0].Dosage.Value)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, entities.DropAmbiguousModify, res.Dropped[0].Reason)
}

func TestReconcile_ModifyUpdatesDose(t *testing.T) {
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{med("Lisinopril", entities.OrderStatusNew, 10)}}
	c := candidate(entities.CommandModify, "Lisinopril", 0)
	c.Dosage = entities.Dosage{Value: 20, Unit: "mg"}

	res := Reconcile(entities.CandidateBatch{Medications: []entities.MedicationCandidate{c}}, previous, at)
	require.Len(t, res.Snapshot.Medications, 1)
	assert.Equal(t, entities.OrderStatusModified, res.Snapshot.Medications[0].Status)
	assert.Equal(t, 20.0, res.Snapshot.Medications[0].Dosage.Value)
}

func TestReconcile_CreateFillsButNeverDuplicates(t *testing.T) {
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{med("Metformin", entities.OrderStatusNew, 500)}}
	c := candidate(entities.CommandCreate, "Metformin", 0)
	c.Dosage = entities.Dosage{Value: 1000, Unit: "mg"}
	c.Frequency = "twice daily"

	res := Reconcile(entities.CandidateBatch{Medications: []entities.MedicationCandidate{c}}, previous, at)
	require.Len(t, res.Snapshot.Medications, 1)
	got := res.Snapshot.Medications[0]
	assert.Equal(t, 500.0, got.Dosage.Value, "first dose wins")
	assert.Equal(t, "twice daily", got.Frequency, "default frequency is filled")
	assert.Equal(t, entities.OrderStatusNew, got.Status)
}

func TestReconcile_CreateRevivesCancelled(t *testing.T) {
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{med("Metformin", entities.OrderStatusCancelled, 500)}}
	res := Reconcile(entities.CandidateBatch{Medications: []entities.MedicationCandidate{candidate(entities.CommandCreate, "Metformin", 0)}}, previous, at)

	require.Len(t, res.Snapshot.Medications, 1)
	assert.Equal(t, entities.OrderStatusNew, res.Snapshot.Medications[0].Status)
	assert.Equal(t, 500.0, res.Snapshot.Medications[0].Dosage.Value)
}

func TestReconcile_RefillUsesContextDosage(t *testing.T) {
	c := candidate(entities.CommandRefill, "Atorvastatin", 0)
	c.ContextDosage = entities.Dosage{Value: 40, Unit: "mg"}
	res := Reconcile(entities.CandidateBatch{Medications: []entities.MedicationCandidate{c}}, entities.OrdersSnapshot{}, at)

	require.Len(t, res.Snapshot.Medications, 1)
	assert.Equal(t, entities.Dosage{Value: 40, Unit: "mg"}, res.Snapshot.Medications[0].Dosage)
}

func TestReconcile_BulkRefillRevives(t *testing.T) {
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{
		med("Metformin", entities.OrderStatusNew, 500),
		med("Lisinopril", entities.OrderStatusCancelled, 10),
	}}
	batch := entities.CandidateBatch{BulkRefill: true, BulkRefillRaw: "refill both medications"}

	res := Reconcile(batch, previous, at)
	require.Len(t, res.Snapshot.Medications, 2)
	for _, m := range res.Snapshot.Medications {
		assert.Equal(t, entities.OrderStatusNew, m.Status, m.DrugName)
	}
	assert.Equal(t, "refill both medications", res.Snapshot.Medications[1].RawText)

	again := Reconcile(batch, res.Snapshot, at)
	assert.Equal(t, res.Snapshot, again.Snapshot)
}

func TestReconcile_BulkRefillSkipsSameBatchCancel(t *testing.T) {
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{
		med("Metformin", entities.OrderStatusNew, 500),
		med("Lisinopril", entities.OrderStatusNew, 10),
	}}
	batch := entities.CandidateBatch{
		Medications: []entities.MedicationCandidate{candidate(entities.CommandCancel, "Lisinopril", 0)},
		BulkRefill:  true,
	}

	res := Reconcile(batch, previous, at)
	assert.Equal(t, entities.OrderStatusNew, res.Snapshot.Medications[0].Status)
	assert.Equal(t, entities.OrderStatusCancelled, res.Snapshot.Medications[1].Status)

	again := Reconcile(batch, res.Snapshot, at)
	assert.Equal(t, res.Snapshot, again.Snapshot)
}

func TestReconcile_LaterCancelSupersedesCreate(t *testing.T) {
	batch := entities.CandidateBatch{Medications: []entities.MedicationCandidate{
		candidate(entities.CommandCreate, "Metformin", 0),
		candidate(entities.CommandCancel, "Metformin", 40),
	}}

	first := Reconcile(batch, entities.OrdersSnapshot{}, at)
	require.Len(t, first.Snapshot.Medications, 1)
	assert.Equal(t, entities.OrderStatusCancelled, first.Snapshot.Medications[0].Status)

	second := Reconcile(batch, first.Snapshot, at)
	assert.Equal(t, first.Snapshot, second.Snapshot)
}

func TestReconcile_RestartAfterCancel(t *testing.T) {
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{med("Metformin", entities.OrderStatusNew, 500)}}
	batch := entities.CandidateBatch{Medications: []entities.MedicationCandidate{
		candidate(entities.CommandCancel, "Metformin", 0),
		candidate(entities.CommandCreate, "Metformin", 40),
	}}

	first := Reconcile(batch, previous, at)
	require.Len(t, first.Snapshot.Medications, 1)
	assert.Equal(t, entities.OrderStatusNew, first.Snapshot.Medications[0].Status)

	second := Reconcile(batch, first.Snapshot, at)
	assert.Equal(t, first.Snapshot, second.Snapshot)
}

func TestReconcile_LabsMergeAndEscalate(t *testing.T) {
	batch := entities.CandidateBatch{Labs: []entities.LabCandidate{
		{TestName: "CBC", Urgency: entities.UrgencyRoutine, OrderDate: entities.DateRoutine, RawText: "order a CBC", Confidence: 0.9},
	}}
	first := Reconcile(batch, entities.OrdersSnapshot{}, at)
	require.Len(t, first.Snapshot.Labs, 1)
	assert.Equal(t, entities.DateRoutine, first.Snapshot.Labs[0].OrderDate)

	stat := entities.CandidateBatch{Labs: []entities.LabCandidate{
		{TestName: "cbc", Urgency: entities.UrgencyStat, Fasting: true, RawText: "STAT the CBC", Confidence: 0.75},
	}}
	second := Reconcile(stat, first.Snapshot, at)
	require.Len(t, second.Snapshot.Labs, 1)
	lab := second.Snapshot.Labs[0]
	assert.Equal(t, entities.UrgencyStat, lab.Urgency)
	assert.Equal(t, entities.DateStat, lab.OrderDate)
	assert.True(t, lab.Fasting)
	assert.Equal(t, 0.9, lab.Confidence)

	third := Reconcile(batch, second.Snapshot, at)
	assert.Equal(t, entities.UrgencyStat, third.Snapshot.Labs[0].Urgency, "urgency never downgrades")
}

func TestReconcile_PreservesOrder(t *testing.T) {
	previous := entities.OrdersSnapshot{Medications: []entities.MedicationOrder{
		med("Lisinopril", entities.OrderStatusNew, 10),
		med("Metformin", entities.OrderStatusNew, 500),
	}}
	batch := entities.CandidateBatch{Medications: []entities.MedicationCandidate{
		candidate(entities.CommandCreate, "Atorvastatin", 0),
	}}
	res := Reconcile(batch, previous, at)

	var got []string
	for _, m := range res.Snapshot.Medications {
		got = append(got, m.DrugName)
	}
	assert.Equal(t, []string{"Lisinopril", "Metformin", "Atorvastatin"}, got)
}

func TestTransitionTable(t *testing.T) {
	for _, from := range []entities.OrderStatus{entities.OrderStatusNew, entities.OrderStatusModified, entities.OrderStatusCancelled} {
		for _, trig := range []entities.Trigger{entities.TriggerCancel, entities.TriggerModify, entities.TriggerCreate, entities.TriggerBulkRefill} {
			next, ok := entities.NextStatus(from, trig)
			assert.True(t, ok, "%s/%s", from, trig)
			assert.True(t, next.IsValid())
		}
	}
	_, ok := entities.InitialStatus(entities.TriggerCancel)
	assert.False(t, ok)
}
