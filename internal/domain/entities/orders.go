package entities

import (
	"strconv"
	"strings"
	"time"
)

// OrderStatus is the reconciliation status of an extracted order.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusModified  OrderStatus = "modified"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid checks if the status is one of the defined constants.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusNew, OrderStatusModified, OrderStatusCancelled:
		return true
	}
	return false
}

// ParseOrderStatus maps free text onto a status, defaulting to new.
func ParseOrderStatus(value string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "modified", "modify", "changed":
		return OrderStatusModified
	case "cancelled", "canceled", "cancel", "stopped", "discontinued":
		return OrderStatusCancelled
	default:
		return OrderStatusNew
	}
}

// Urgency is the priority of a lab order.
type Urgency string

const (
	UrgencyRoutine Urgency = "routine"
	UrgencyUrgent  Urgency = "urgent"
	UrgencyStat    Urgency = "stat"
)

// Rank orders urgencies so that stat > urgent > routine.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyStat:
		return 2
	case UrgencyUrgent:
		return 1
	default:
		return 0
	}
}

// ParseUrgency maps free text onto an urgency, defaulting to routine.
func ParseUrgency(value string) Urgency {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "stat":
		return UrgencyStat
	case "urgent", "asap":
		return UrgencyUrgent
	default:
		return UrgencyRoutine
	}
}

const (
	// DefaultFrequency is used when no cadence is dictated.
	DefaultFrequency = "as directed"
	// DefaultRoute is used when no route is dictated.
	DefaultRoute = "PO"

	DateStat    = "Today - STAT"
	DateUrgent  = "Within 48 hours"
	DateRoutine = "Before next visit"
)

// SynthesizedOrderDate is the lab date used when none was dictated.
func SynthesizedOrderDate(u Urgency) string {
	switch u {
	case UrgencyStat:
		return DateStat
	case UrgencyUrgent:
		return DateUrgent
	default:
		return DateRoutine
	}
}

// IsSynthesizedOrderDate reports whether date was generated from urgency rather than dictated.
func IsSynthesizedOrderDate(date string) bool {
	return date == "" || date == DateUrgent || date == DateRoutine
}

// Dosage is a strength value with its unit. The zero value means unspecified.
type Dosage struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// IsZero reports whether no dosage was captured.
func (d Dosage) IsZero() bool {
	return d.Value == 0 && d.Unit == ""
}

// String renders the dosage compactly, e.g. "500mg" or "0.5mg".
func (d Dosage) String() string {
	if d.IsZero() {
		return ""
	}
	value := strconv.FormatFloat(d.Value, 'f', -1, 64)
	if d.Unit == "units" {
		return value + " units"
	}
	return value + d.Unit
}

// MedicationOrder is a medication extracted from dictation.
type MedicationOrder struct {
	ID         string      `json:"id"`
	DrugName   string      `json:"drugName"`
	Dosage     Dosage      `json:"dosage"`
	Frequency  string      `json:"frequency"`
	Route      string      `json:"route"`
	Duration   string      `json:"duration,omitempty"`
	Quantity   string      `json:"quantity,omitempty"`
	Refills    *int        `json:"refills,omitempty"`
	Indication string      `json:"indication,omitempty"`
	Pharmacy   string      `json:"pharmacy,omitempty"`
	Status     OrderStatus `json:"status"`
	RawText    string      `json:"rawText"`
	Confidence float64     `json:"confidence"`
}

// Identity returns the canonical key used to match the order across calls.
func (m MedicationOrder) Identity() string {
	return CanonicalKey(m.DrugName)
}

// LabOrder is a lab test extracted from dictation.
type LabOrder struct {
	ID         string      `json:"id"`
	TestName   string      `json:"testName"`
	OrderDate  string      `json:"orderDate"`
	Urgency    Urgency     `json:"urgency"`
	Fasting    bool        `json:"fasting"`
	Notes      string      `json:"notes,omitempty"`
	Location   string      `json:"location,omitempty"`
	Status     OrderStatus `json:"status"`
	RawText    string      `json:"rawText"`
	Confidence float64     `json:"confidence"`
}

// Identity returns the canonical key used to match the order across calls.
func (l LabOrder) Identity() string {
	return CanonicalKey(l.TestName)
}

// OrdersSnapshot is the full set of known orders as of the latest extraction call.
// It is treated as an immutable value: operations return new snapshots.
type OrdersSnapshot struct {
	Medications []MedicationOrder `json:"medications"`
	Labs        []LabOrder        `json:"labs"`
	LastUpdated time.Time         `json:"lastUpdated"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (s OrdersSnapshot) Clone() OrdersSnapshot {
	out := OrdersSnapshot{
		Medications: make([]MedicationOrder, len(s.Medications)),
		Labs:        make([]LabOrder, len(s.Labs)),
		LastUpdated: s.LastUpdated,
	}
	copy(out.Medications, s.Medications)
	copy(out.Labs, s.Labs)
	for i := range out.Medications {
		if r := out.Medications[i].Refills; r != nil {
			v := *r
			out.Medications[i].Refills = &v
		}
	}
	return out
}

// ActiveMedications returns medications that are not cancelled.
func (s OrdersSnapshot) ActiveMedications() []MedicationOrder {
	active := make([]MedicationOrder, 0, len(s.Medications))
	for _, m := range s.Medications {
		if m.Status != OrderStatusCancelled {
			active = append(active, m)
		}
	}
	return active
}

// CanonicalKey lowercases and collapses whitespace so names compare case-insensitively.
func CanonicalKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// ClampConfidence keeps a confidence score within [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
