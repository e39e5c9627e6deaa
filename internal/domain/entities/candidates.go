package entities

// CommandKind classifies what a medication candidate asks reconciliation to do.
type CommandKind string

const (
	CommandCancel     CommandKind = "cancel"
	CommandModify     CommandKind = "modify"
	CommandCreate     CommandKind = "create"
	CommandRefill     CommandKind = "refill"
	CommandContinue   CommandKind = "continue"
	CommandVocabulary CommandKind = "vocabulary"
)

// Creates reports whether the command belongs to the create/continue/refill/vocabulary class.
func (k CommandKind) Creates() bool {
	switch k {
	case CommandCreate, CommandRefill, CommandContinue, CommandVocabulary:
		return true
	}
	return false
}

// MedicationCandidate is a parsed, not yet reconciled medication mention.
type MedicationCandidate struct {
	Command    CommandKind `json:"command"`
	Strategy   string      `json:"strategy"`
	DrugName   string      `json:"drugName"`
	Dosage     Dosage      `json:"dosage"`
	Frequency  string      `json:"frequency,omitempty"`
	Route      string      `json:"route,omitempty"`
	Duration   string      `json:"duration,omitempty"`
	Quantity   string      `json:"quantity,omitempty"`
	Refills    *int        `json:"refills,omitempty"`
	Indication string      `json:"indication,omitempty"`
	Pharmacy   string      `json:"pharmacy,omitempty"`
	RawText    string      `json:"rawText"`
	Confidence float64     `json:"confidence"`

	// ContextDosage is the most recent dose spoken for this drug earlier in the
	// transcript; refills without an explicit dose fall back to it.
	ContextDosage Dosage `json:"contextDosage,omitempty"`

	// Position is the character offset of the match in the normalized transcript.
	Position int `json:"position"`
}

// Identity returns the canonical key of the candidate.
func (c MedicationCandidate) Identity() string {
	return CanonicalKey(c.DrugName)
}

// LabCandidate is a parsed, not yet reconciled lab mention.
type LabCandidate struct {
	Strategy   string  `json:"strategy"`
	TestName   string  `json:"testName"`
	OrderDate  string  `json:"orderDate"`
	Urgency    Urgency `json:"urgency"`
	Fasting    bool    `json:"fasting"`
	Notes      string  `json:"notes,omitempty"`
	Location   string  `json:"location,omitempty"`
	RawText    string  `json:"rawText"`
	Confidence float64 `json:"confidence"`
	Position   int     `json:"position"`
}

// Identity returns the canonical key of the candidate.
func (c LabCandidate) Identity() string {
	return CanonicalKey(c.TestName)
}

// CandidateBatch is everything one extraction pass produced for reconciliation.
type CandidateBatch struct {
	Medications []MedicationCandidate `json:"medications"`
	Labs        []LabCandidate        `json:"labs"`

	// BulkRefill is set when the transcript contains a "refill both/all" utterance.
	BulkRefill    bool   `json:"bulkRefill"`
	BulkRefillRaw string `json:"bulkRefillRaw,omitempty"`
}

// DropReason explains why a candidate did not reach the snapshot.
type DropReason string

const (
	DropLowConfidence         DropReason = "low_confidence_suppressed"
	DropAmbiguousCancellation DropReason = "ambiguous_cancellation"
	DropAmbiguousModify       DropReason = "ambiguous_modify_converted"
	DropSuperseded            DropReason = "superseded_by_cancellation"
	DropEntityLimit           DropReason = "entity_limit"
	DropModelValidation       DropReason = "model_validation_failed"
)

// Drop records a candidate that was suppressed or converted. Drops are
// diagnostics, not errors.
type Drop struct {
	Reason  DropReason `json:"reason"`
	Kind    string     `json:"kind"`
	Name    string     `json:"name"`
	RawText string     `json:"rawText"`
}
