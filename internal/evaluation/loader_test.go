package evaluation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

func TestLoadGoldenTranscripts_ValidFile(t *testing.T) {
	content := `[
		{"id": "t1", "steps": ["start metformin 500mg twice daily"], "category": "medication", "expected_medications": [{"drug_name": "Metformin", "status": "new", "dosage": "500mg"}], "expected_labs": [], "difficulty": "easy"},
		{"id": "t2", "steps": ["order a cbc", "order a cbc and a cmp"], "category": "lab", "expected_medications": [], "expected_labs": [{"test_name": "CBC", "status": "new"}, {"test_name": "CMP", "status": "new", "fasting": false}], "difficulty": "medium"}
	]`
	path := writeTempFile(t, content)

	cases, err := LoadGoldenTranscripts(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(cases))
	}
	if cases[0].Category != CategoryMedication {
		t.Errorf("expected category medication, got %s", cases[0].Category)
	}
	if cases[0].ExpectedMedications[0].Dosage != "500mg" {
		t.Errorf("expected dosage 500mg, got %s", cases[0].ExpectedMedications[0].Dosage)
	}
	if len(cases[1].Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(cases[1].Steps))
	}
	if cases[1].ExpectedLabs[1].Fasting == nil || *cases[1].ExpectedLabs[1].Fasting {
		t.Errorf("expected explicit fasting=false on CMP")
	}
	if cases[1].ExpectedLabs[0].Fasting != nil {
		t.Errorf("expected unlabeled fasting on CBC")
	}
}

func TestLoadGoldenTranscripts_InvalidFile(t *testing.T) {
	_, err := LoadGoldenTranscripts("/nonexistent/path.json")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadGoldenTranscripts_InvalidJSON(t *testing.T) {
	path := writeTempFile(t, `not valid json`)
	_, err := LoadGoldenTranscripts(path)
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadGoldenTranscripts_RepositorySet(t *testing.T) {
	path := filepath.Join("..", "..", "config", "golden_transcripts.json")
	cases, err := LoadGoldenTranscripts(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cases) == 0 {
		t.Fatal("expected golden transcripts")
	}
	if err := ValidateGoldenTranscripts(cases); err != nil {
		t.Errorf("repository golden set is invalid: %v", err)
	}
}

func TestCategory_IsValid(t *testing.T) {
	tests := []struct {
		category Category
		valid    bool
	}{
		{CategoryMedication, true},
		{CategoryLab, true},
		{CategoryMixed, true},
		{CategoryCommand, true},
		{CategoryNegative, true},
		{Category("unknown"), false},
		{Category(""), false},
	}
	for _, tt := range tests {
		if got := tt.category.IsValid(); got != tt.valid {
			t.Errorf("Category(%q).IsValid() = %v, want %v", tt.category, got, tt.valid)
		}
	}
	if len(ValidCategories()) != 5 {
		t.Errorf("expected 5 categories")
	}
}

func TestValidateGoldenTranscripts(t *testing.T) {
	valid := GoldenTranscript{ID: "t1", Steps: []string{"order a cbc"}, Category: CategoryLab, Difficulty: "easy"}

	tests := []struct {
		name    string
		mutate  func(c *GoldenTranscript)
		wantErr bool
	}{
		{"valid", func(c *GoldenTranscript) {}, false},
		{"missing id", func(c *GoldenTranscript) { c.ID = "" }, true},
		{"no steps", func(c *GoldenTranscript) { c.Steps = nil }, true},
		{"blank step", func(c *GoldenTranscript) { c.Steps = []string{"  "} }, true},
		{"invalid category", func(c *GoldenTranscript) { c.Category = "bad" }, true},
		{"invalid difficulty", func(c *GoldenTranscript) { c.Difficulty = "impossible" }, true},
		{"medication without status", func(c *GoldenTranscript) {
			c.ExpectedMedications = []ExpectedMedication{{DrugName: "Metformin"}}
		}, true},
		{"lab without name", func(c *GoldenTranscript) {
			c.ExpectedLabs = []ExpectedLab{{Status: entities.OrderStatusNew}}
		}, true},
		{"negative with expectations", func(c *GoldenTranscript) {
			c.Category = CategoryNegative
			c.ExpectedLabs = []ExpectedLab{{TestName: "CBC", Status: entities.OrderStatusNew}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := ValidateGoldenTranscripts([]GoldenTranscript{c})
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGoldenTranscripts() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateGoldenTranscripts_DuplicateIDs(t *testing.T) {
	cases := []GoldenTranscript{
		{ID: "t1", Steps: []string{"order a cbc"}, Category: CategoryLab, Difficulty: "easy"},
		{ID: "t1", Steps: []string{"order a cmp"}, Category: CategoryLab, Difficulty: "easy"},
	}
	if err := ValidateGoldenTranscripts(cases); err == nil {
		t.Error("expected validation error for duplicate IDs")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
