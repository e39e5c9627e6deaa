package evaluation

import (
	"time"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

// Category is what a golden transcript mainly exercises.
type Category string

const (
	CategoryMedication Category = "medication" // new prescriptions with attributes
	CategoryLab        Category = "lab"        // lab orders, urgency, fasting, dates
	CategoryMixed      Category = "mixed"      // both in one dictation
	CategoryCommand    Category = "command"    // stop/modify/refill against earlier orders
	CategoryNegative   Category = "negative"   // chatter that must yield no orders
)

// ValidCategories returns all valid category values.
func ValidCategories() []Category {
	return []Category{CategoryMedication, CategoryLab, CategoryMixed, CategoryCommand, CategoryNegative}
}

// IsValid checks if the category value is one of the defined constants.
func (c Category) IsValid() bool {
	switch c {
	case CategoryMedication, CategoryLab, CategoryMixed, CategoryCommand, CategoryNegative:
		return true
	}
	return false
}

// ExpectedMedication is a labeled medication outcome. Empty fields are not checked.
type ExpectedMedication struct {
	DrugName string               `json:"drug_name"`
	Status   entities.OrderStatus `json:"status"`
	Dosage   string               `json:"dosage,omitempty"`
}

// ExpectedLab is a labeled lab outcome. Empty fields are not checked.
type ExpectedLab struct {
	TestName string               `json:"test_name"`
	Status   entities.OrderStatus `json:"status"`
	Urgency  entities.Urgency     `json:"urgency,omitempty"`
	Fasting  *bool                `json:"fasting,omitempty"`
}

// GoldenTranscript is a labeled dictation. Steps are successive cumulative
// transcripts fed in order, the way a streaming caller would.
type GoldenTranscript struct {
	ID                  string               `json:"id"`
	Steps               []string             `json:"steps"`
	Category            Category             `json:"category"`
	ExpectedMedications []ExpectedMedication `json:"expected_medications"`
	ExpectedLabs        []ExpectedLab        `json:"expected_labs"`
	Difficulty          string               `json:"difficulty"` // easy, medium, hard
}

// EvalResult holds the evaluation outcome for a single transcript.
type EvalResult struct {
	CaseID            string        `json:"case_id"`
	Category          Category      `json:"category"`
	Difficulty        string        `json:"difficulty"`
	Precision         float64       `json:"precision"`
	Recall            float64       `json:"recall"`
	F1                float64       `json:"f1"`
	StatusAccuracy    float64       `json:"status_accuracy"`
	AttributeAccuracy float64       `json:"attribute_accuracy"`
	Missing           []string      `json:"missing,omitempty"`
	Unexpected        []string      `json:"unexpected,omitempty"`
	Dropped           int           `json:"dropped"`
	Latency           time.Duration `json:"latency"`
	Error             string        `json:"error,omitempty"`
}

// EvalSummary holds aggregate metrics across all golden transcripts.
type EvalSummary struct {
	Engine               string                     `json:"engine"`
	TotalCases           int                        `json:"total_cases"`
	AvgPrecision         float64                    `json:"avg_precision"`
	AvgRecall            float64                    `json:"avg_recall"`
	AvgF1                float64                    `json:"avg_f1"`
	AvgStatusAccuracy    float64                    `json:"avg_status_accuracy"`
	AvgAttributeAccuracy float64                    `json:"avg_attribute_accuracy"`
	AvgLatency           time.Duration              `json:"avg_latency"`
	PerfectCases         int                        `json:"perfect_cases"`
	FailedCases          int                        `json:"failed_cases"`
	ByDifficulty         map[string]*GroupSummary   `json:"by_difficulty"`
	ByCategory           map[Category]*GroupSummary `json:"by_category"`
	Results              []EvalResult               `json:"results"`
}

// GroupSummary holds metrics grouped by difficulty or category.
type GroupSummary struct {
	Count        int     `json:"count"`
	AvgPrecision float64 `json:"avg_precision"`
	AvgRecall    float64 `json:"avg_recall"`
	AvgF1        float64 `json:"avg_f1"`
}
