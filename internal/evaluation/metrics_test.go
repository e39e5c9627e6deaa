package evaluation

import (
	"math"
	"reflect"
	"testing"
)

const floatTolerance = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func TestPrecisionRecall(t *testing.T) {
	tests := []struct {
		name          string
		expected      []string
		extracted     []string
		wantPrecision float64
		wantRecall    float64
	}{
		{"perfect", []string{"a", "b"}, []string{"b", "a"}, 1.0, 1.0},
		{"one missing", []string{"a", "b"}, []string{"a"}, 1.0, 0.5},
		{"one extra", []string{"a"}, []string{"a", "x"}, 0.5, 1.0},
		{"disjoint", []string{"a"}, []string{"x"}, 0.0, 0.0},
		{"nothing expected nothing extracted", nil, nil, 1.0, 1.0},
		{"nothing expected something extracted", nil, []string{"x"}, 0.0, 1.0},
		{"something expected nothing extracted", []string{"a"}, nil, 0.0, 0.0},
		{"duplicates collapse", []string{"a", "a"}, []string{"a", "a", "x"}, 0.5, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Precision(tt.expected, tt.extracted); !almostEqual(got, tt.wantPrecision) {
				t.Errorf("Precision = %f, want %f", got, tt.wantPrecision)
			}
			if got := Recall(tt.expected, tt.extracted); !almostEqual(got, tt.wantRecall) {
				t.Errorf("Recall = %f, want %f", got, tt.wantRecall)
			}
		})
	}
}

func TestF1(t *testing.T) {
	if got := F1(1.0, 0.5); !almostEqual(got, 2.0/3.0) {
		t.Errorf("expected 0.6667, got %f", got)
	}
	if got := F1(0, 0); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
	if got := F1(1, 1); !almostEqual(got, 1.0) {
		t.Errorf("expected 1.0, got %f", got)
	}
}

func TestAccuracy(t *testing.T) {
	if got := Accuracy(0, 0); got != 1.0 {
		t.Errorf("expected 1.0 with nothing compared, got %f", got)
	}
	if got := Accuracy(3, 4); !almostEqual(got, 0.75) {
		t.Errorf("expected 0.75, got %f", got)
	}
}

func TestDifference(t *testing.T) {
	got := Difference([]string{"a", "b", "b", "c"}, []string{"c"})
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("expected [a b], got %v", got)
	}
	if got := Difference([]string{"a"}, []string{"a"}); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
