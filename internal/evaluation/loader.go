package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadGoldenTranscripts reads and parses a golden transcript set from a JSON file.
func LoadGoldenTranscripts(path string) ([]GoldenTranscript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden transcripts file: %w", err)
	}

	var cases []GoldenTranscript
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse golden transcripts: %w", err)
	}

	return cases, nil
}

var validDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

// ValidateGoldenTranscripts checks that all cases have required fields and valid values.
func ValidateGoldenTranscripts(cases []GoldenTranscript) error {
	seen := make(map[string]struct{}, len(cases))

	for i, c := range cases {
		if c.ID == "" {
			return fmt.Errorf("case at index %d: missing id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("case at index %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}

		if len(c.Steps) == 0 {
			return fmt.Errorf("case %q: no transcript steps", c.ID)
		}
		for j, step := range c.Steps {
			if strings.TrimSpace(step) == "" {
				return fmt.Errorf("case %q: step %d is empty", c.ID, j)
			}
		}
		if !c.Category.IsValid() {
			return fmt.Errorf("case %q: invalid category %q", c.ID, c.Category)
		}
		if !validDifficulties[c.Difficulty] {
			return fmt.Errorf("case %q: invalid difficulty %q (must be easy/medium/hard)", c.ID, c.Difficulty)
		}
		for _, m := range c.ExpectedMedications {
			if m.DrugName == "" || !m.Status.IsValid() {
				return fmt.Errorf("case %q: expected medication needs drug_name and a valid status", c.ID)
			}
		}
		for _, l := range c.ExpectedLabs {
			if l.TestName == "" || !l.Status.IsValid() {
				return fmt.Errorf("case %q: expected lab needs test_name and a valid status", c.ID)
			}
		}
		if c.Category == CategoryNegative && (len(c.ExpectedMedications) > 0 || len(c.ExpectedLabs) > 0) {
			return fmt.Errorf("case %q: negative cases cannot expect orders", c.ID)
		}
	}

	return nil
}
