// Package reconcile merges a batch of extracted candidates into the previous snapshot.
// Reconcile is a pure function: the same batch and snapshot always produce the same
// result, and neither input is modified.
package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

// idNamespace scopes the name-based UUIDs of order entities.
var idNamespace = uuid.MustParse("6f1c2a9e-4b8d-5e37-9a51-0c2d7e8f4b16")

const (
	kindMedication = "medication"
	kindLab        = "lab"
)

// Result is the new snapshot plus the candidates that did not make it in unchanged.
type Result struct {
	Snapshot entities.OrdersSnapshot
	Dropped  []entities.Drop
}

// EntityID returns the stable ID of an order with the given kind and identity.
func EntityID(kind, identity string) string {
	return uuid.NewSHA1(idNamespace, []byte(kind+":"+identity)).String()
}

type reconciler struct {
	snap    entities.OrdersSnapshot
	dropped []entities.Drop
}

// Reconcile applies batch to previous:
//  1. cancellations flip live orders to cancelled
//  2. modifications update (or revive, or insert) the order
//  3. creations insert unknown orders, fill gaps in live ones and revive cancelled ones
//  4. labs are inserted or merged
//  5. a bulk refill re-marks every medication as new, except those cancelled by this batch
//
// Commands that come before a later cancellation of the same drug are superseded by it.
func Reconcile(batch entities.CandidateBatch, previous entities.OrdersSnapshot, at time.Time) Result {
	r := &reconciler{snap: previous.Clone()}
	if r.snap.Medications == nil {
		r.snap.Medications = []entities.MedicationOrder{}
	}
	if r.snap.Labs == nil {
		r.snap.Labs = []entities.LabOrder{}
	}

	cancels, modifies, creates, superseded := r.partition(batch.Medications)

	cancelled := make(map[string]bool)
	for _, c := range cancels {
		cancelled[c.Identity()] = true
		r.cancel(c, superseded[c.Identity()])
	}
	for _, c := range modifies {
		r.modify(c)
	}
	for _, c := range creates {
		r.create(c)
	}
	for _, c := range batch.Labs {
		r.lab(c)
	}
	if batch.BulkRefill {
		r.bulkRefill(batch.BulkRefillRaw, cancelled)
	}

	r.snap.LastUpdated = at
	return Result{Snapshot: r.snap, Dropped: r.dropped}
}

// partition splits candidates by command and discards any non-cancel command positioned
// before a later cancel of the same identity. The earliest discarded creation is kept
// per identity so a same-batch "start X ... stop X" still records X as cancelled.
func (r *reconciler) partition(meds []entities.MedicationCandidate) (cancels, modifies, creates []entities.MedicationCandidate, superseded map[string]*entities.MedicationCandidate) {
	lastCancel := make(map[string]int)
	for _, c := range meds {
		if c.Command == entities.CommandCancel {
			if p, ok := lastCancel[c.Identity()]; !ok || c.Position > p {
				lastCancel[c.Identity()] = c.Position
			}
		}
	}

	superseded = make(map[string]*entities.MedicationCandidate)
	for i := range meds {
		c := meds[i]
		if c.Command == entities.CommandCancel {
			cancels = append(cancels, c)
			continue
		}
		if p, ok := lastCancel[c.Identity()]; ok && c.Position < p {
			r.drop(entities.DropSuperseded, kindMedication, c.DrugName, c.RawText)
			if _, seen := superseded[c.Identity()]; !seen {
				superseded[c.Identity()] = &meds[i]
			}
			continue
		}
		if c.Command == entities.CommandModify {
			modifies = append(modifies, c)
		} else {
			creates = append(creates, c)
		}
	}
	return cancels, modifies, creates, superseded
}

func (r *reconciler) cancel(c entities.MedicationCandidate, earlier *entities.MedicationCandidate) {
	id := c.Identity()
	if i, ok := r.findMedication(id); ok {
		m := &r.snap.Medications[i]
		if m.Status == entities.OrderStatusCancelled {
			return
		}
		next, _ := entities.NextStatus(m.Status, entities.TriggerCancel)
		m.Status = next
		m.RawText = rawOr(c.RawText, m.RawText)
		return
	}

	if earlier != nil {
		m := newMedication(*earlier, entities.OrderStatusCancelled, earlier.Dosage)
		m.RawText = rawOr(c.RawText, m.RawText)
		r.snap.Medications = append(r.snap.Medications, m)
		return
	}
	r.drop(entities.DropAmbiguousCancellation, kindMedication, c.DrugName, c.RawText)
}

func (r *reconciler) modify(c entities.MedicationCandidate) {
	if i, ok := r.findMedication(c.Identity()); ok {
		m := &r.snap.Medications[i]
		next, _ := entities.NextStatus(m.Status, entities.TriggerModify)
		overwriteMedication(m, c, c.Dosage)
		m.Status = next
		m.Confidence = entities.ClampConfidence(c.Confidence)
		return
	}

	status, _ := entities.InitialStatus(entities.TriggerModify)
	r.snap.Medications = append(r.snap.Medications, newMedication(c, status, c.Dosage))
	r.drop(entities.DropAmbiguousModify, kindMedication, c.DrugName, c.RawText)
}

func (r *reconciler) create(c entities.MedicationCandidate) {
	dose := c.Dosage
	if dose.IsZero() && c.Command == entities.CommandRefill {
		dose = c.ContextDosage
	}

	i, ok := r.findMedication(c.Identity())
	if !ok {
		status, _ := entities.InitialStatus(entities.TriggerCreate)
		r.snap.Medications = append(r.snap.Medications, newMedication(c, status, dose))
		return
	}

	m := &r.snap.Medications[i]
	next, _ := entities.NextStatus(m.Status, entities.TriggerCreate)
	if m.Status == entities.OrderStatusCancelled {
		overwriteMedication(m, c, dose)
		m.Confidence = entities.ClampConfidence(c.Confidence)
	} else {
		fillMedication(m, c, dose)
		if c.Confidence > m.Confidence {
			m.Confidence = entities.ClampConfidence(c.Confidence)
		}
	}
	m.Status = next
}

func (r *reconciler) lab(c entities.LabCandidate) {
	i, ok := r.findLab(c.Identity())
	if !ok {
		r.snap.Labs = append(r.snap.Labs, newLab(c))
		return
	}

	l := &r.snap.Labs[i]
	if l.Status == entities.OrderStatusCancelled {
		revived := newLab(c)
		revived.ID = l.ID
		*l = revived
		return
	}
	mergeLab(l, c)
}

func (r *reconciler) bulkRefill(raw string, cancelledNow map[string]bool) {
	for i := range r.snap.Medications {
		m := &r.snap.Medications[i]
		if cancelledNow[m.Identity()] {
			continue
		}
		next, _ := entities.NextStatus(m.Status, entities.TriggerBulkRefill)
		if next != m.Status {
			m.Status = next
			m.RawText = rawOr(raw, m.RawText)
		}
	}
}

// findMedication prefers the live order for an identity and falls back to the most
// recent cancelled one.
func (r *reconciler) findMedication(identity string) (int, bool) {
	found := -1
	for i, m := range r.snap.Medications {
		if m.Identity() != identity {
			continue
		}
		if m.Status != entities.OrderStatusCancelled {
			return i, true
		}
		found = i
	}
	return found, found >= 0
}

func (r *reconciler) findLab(identity string) (int, bool) {
	found := -1
	for i, l := range r.snap.Labs {
		if l.Identity() != identity {
			continue
		}
		if l.Status != entities.OrderStatusCancelled {
			return i, true
		}
		found = i
	}
	return found, found >= 0
}

func (r *reconciler) drop(reason entities.DropReason, kind, name, raw string) {
	r.dropped = append(r.dropped, entities.Drop{Reason: reason, Kind: kind, Name: name, RawText: raw})
}

func rawOr(raw, fallback string) string {
	if raw != "" {
		return raw
	}
	return fallback
}
