package face

import (
	"errors"
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float64
		wantErr error
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 0},
		{name: "3-4-5 triangle", a: []float32{0, 0}, b: []float32{3, 4}, want: 5},
		{name: "unit axis", a: []float32{1, 0, 0}, b: []float32{0, 1, 0}, want: math.Sqrt2},
		{name: "length mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, wantErr: ErrDimensionMismatch},
		{name: "empty", a: []float32{}, b: []float32{}, wantErr: ErrEmptyEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.a, tt.b)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Distance() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Distance() unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Distance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{0.25, 0.75},
		{0.6, 0.4},
		{1, 0},
		{1.7, 0},
		{-0.5, 1},
	}
	for _, tt := range tests {
		if got := Similarity(tt.distance); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]float32{0.1, 0.2}, 2); err != nil {
		t.Errorf("valid vector rejected: %v", err)
	}
	if err := Validate([]float32{0.1}, 2); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short vector: got %v", err)
	}
	if err := Validate(nil, 0); !errors.Is(err, ErrEmptyEmbedding) {
		t.Errorf("nil vector: got %v", err)
	}
	if err := Validate([]float32{float32(math.NaN()), 1}, 2); err == nil {
		t.Error("NaN component should be rejected")
	}
	if err := Validate([]float32{float32(math.Inf(1))}, 0); err == nil {
		t.Error("Inf component should be rejected")
	}
}

func TestMatcher_Best(t *testing.T) {
	gallery := []Candidate{
		{StaffID: "far", Embedding: []float32{1, 1, 1}},
		{StaffID: "near", Name: "Near", Embedding: []float32{0.1, 0, 0}},
		{StaffID: "wrong-dim", Embedding: []float32{0, 0}},
		{StaffID: "mid", Embedding: []float32{0.5, 0, 0}},
	}
	m := NewMatcher(0, 3)

	got, err := m.Best([]float32{0, 0, 0}, gallery)
	if err != nil {
		t.Fatalf("Best() error: %v", err)
	}
	if got.StaffID != "near" || got.Name != "Near" {
		t.Errorf("StaffID = %q, want near", got.StaffID)
	}
	if got.Compared != 3 {
		t.Errorf("Compared = %d, want 3 (wrong-dim skipped)", got.Compared)
	}
	if !got.Matched {
		t.Error("distance 0.1 should match at default threshold")
	}
	if math.Abs(got.Similarity-0.9) > 1e-6 {
		t.Errorf("Similarity = %v, want 0.9", got.Similarity)
	}
}

func TestMatcher_BestBelowThreshold(t *testing.T) {
	m := NewMatcher(0.4, 2)
	got, err := m.Best([]float32{0, 0}, []Candidate{{StaffID: "a", Embedding: []float32{0.7, 0}}})
	if err != nil {
		t.Fatalf("Best() error: %v", err)
	}
	if got.Matched {
		t.Errorf("distance 0.7 (similarity %.2f) should not match", got.Similarity)
	}
	if got.StaffID != "a" {
		t.Errorf("closest candidate should still be reported, got %q", got.StaffID)
	}
}

func TestMatcher_BestTieKeepsFirst(t *testing.T) {
	m := NewMatcher(0.4, 1)
	got, err := m.Best([]float32{0}, []Candidate{
		{StaffID: "first", Embedding: []float32{0.2}},
		{StaffID: "second", Embedding: []float32{-0.2}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.StaffID != "first" {
		t.Errorf("tie should keep first candidate, got %q", got.StaffID)
	}
}

func TestMatcher_BestErrors(t *testing.T) {
	m := NewMatcher(0.4, 2)
	if _, err := m.Best([]float32{0, 0}, nil); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("empty gallery: got %v", err)
	}
	if _, err := m.Best([]float32{0, 0}, []Candidate{{StaffID: "x", Embedding: []float32{1}}}); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("only incompatible candidates: got %v", err)
	}
	if _, err := m.Best([]float32{0}, []Candidate{{StaffID: "x", Embedding: []float32{1}}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("probe with wrong dimension: got %v", err)
	}
}
