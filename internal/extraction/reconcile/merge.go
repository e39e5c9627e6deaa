package reconcile

import (
	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

func newMedication(c entities.MedicationCandidate, status entities.OrderStatus, dose entities.Dosage) entities.MedicationOrder {
	m := entities.MedicationOrder{
		ID:         EntityID(kindMedication, c.Identity()),
		DrugName:   c.DrugName,
		Dosage:     dose,
		Frequency:  orDefault(c.Frequency, entities.DefaultFrequency),
		Route:      orDefault(c.Route, entities.DefaultRoute),
		Duration:   c.Duration,
		Quantity:   c.Quantity,
		Refills:    copyInt(c.Refills),
		Indication: c.Indication,
		Pharmacy:   c.Pharmacy,
		Status:     status,
		RawText:    rawOr(c.RawText, c.DrugName),
		Confidence: entities.ClampConfidence(c.Confidence),
	}
	return m
}

// overwriteMedication copies every field the candidate carries onto m. Used when a
// command explicitly changes the order.
func overwriteMedication(m *entities.MedicationOrder, c entities.MedicationCandidate, dose entities.Dosage) {
	if !dose.IsZero() {
		m.Dosage = dose
	}
	setIf(&m.Frequency, c.Frequency)
	setIf(&m.Route, c.Route)
	setIf(&m.Duration, c.Duration)
	setIf(&m.Quantity, c.Quantity)
	setIf(&m.Indication, c.Indication)
	setIf(&m.Pharmacy, c.Pharmacy)
	if c.Refills != nil {
		m.Refills = copyInt(c.Refills)
	}
	m.RawText = rawOr(c.RawText, m.RawText)
}

// fillMedication only fills fields the order does not have yet, so streaming dictation
// can add the dose or frequency after the drug was first heard. The first dose wins.
func fillMedication(m *entities.MedicationOrder, c entities.MedicationCandidate, dose entities.Dosage) {
	if m.Dosage.IsZero() && !dose.IsZero() {
		m.Dosage = dose
	}
	if m.Frequency == "" || m.Frequency == entities.DefaultFrequency {
		setIf(&m.Frequency, c.Frequency)
	}
	if m.Route == "" || m.Route == entities.DefaultRoute {
		setIf(&m.Route, c.Route)
	}
	fillIf(&m.Duration, c.Duration)
	fillIf(&m.Quantity, c.Quantity)
	fillIf(&m.Indication, c.Indication)
	fillIf(&m.Pharmacy, c.Pharmacy)
	if m.Refills == nil && c.Refills != nil {
		m.Refills = copyInt(c.Refills)
	}
}

func newLab(c entities.LabCandidate) entities.LabOrder {
	urgency := c.Urgency
	if urgency == "" {
		urgency = entities.UrgencyRoutine
	}
	date := c.OrderDate
	if urgency == entities.UrgencyStat || date == "" {
		date = entities.SynthesizedOrderDate(urgency)
	}
	return entities.LabOrder{
		ID:         EntityID(kindLab, c.Identity()),
		TestName:   c.TestName,
		OrderDate:  date,
		Urgency:    urgency,
		Fasting:    c.Fasting,
		Notes:      c.Notes,
		Location:   c.Location,
		Status:     entities.OrderStatusNew,
		RawText:    rawOr(c.RawText, c.TestName),
		Confidence: entities.ClampConfidence(c.Confidence),
	}
}

// mergeLab folds a repeated lab mention into the existing order. Urgency only escalates
// and fasting is sticky.
func mergeLab(l *entities.LabOrder, c entities.LabCandidate) {
	escalated := c.Urgency.Rank() > l.Urgency.Rank()
	if escalated {
		l.Urgency = c.Urgency
	}
	l.Fasting = l.Fasting || c.Fasting

	switch {
	case l.Urgency == entities.UrgencyStat:
		l.OrderDate = entities.DateStat
	case entities.IsSynthesizedOrderDate(l.OrderDate) && !entities.IsSynthesizedOrderDate(c.OrderDate):
		l.OrderDate = c.OrderDate
	case escalated && entities.IsSynthesizedOrderDate(l.OrderDate):
		l.OrderDate = entities.SynthesizedOrderDate(l.Urgency)
	}

	fillIf(&l.Notes, c.Notes)
	fillIf(&l.Location, c.Location)
	if c.Confidence > l.Confidence {
		l.Confidence = entities.ClampConfidence(c.Confidence)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func fillIf(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
