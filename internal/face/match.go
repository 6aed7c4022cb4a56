// Package face compares face embeddings produced by the external embedding
// service. Matching is an exact linear scan over the enrolled gallery.
package face

import (
	"errors"
	"fmt"
	"math"
)

// DefaultThreshold is the minimum similarity for a match (distance <= 0.6).
const DefaultThreshold = 0.4

var (
	ErrDimensionMismatch = errors.New("embedding dimensions differ")
	ErrEmptyEmbedding    = errors.New("embedding is empty")
	ErrNoCandidates      = errors.New("no candidates to match against")
)

// Candidate is an enrolled embedding with its owner.
type Candidate struct {
	StaffID   string    `json:"staff_id"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding"`
}

// Match is the outcome of comparing a probe against a gallery.
type Match struct {
	StaffID    string  `json:"staff_id"`
	Name       string  `json:"name,omitempty"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
	Matched    bool    `json:"matched"`
	Compared   int     `json:"compared"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyEmbedding
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Similarity maps a distance onto [0, 1]; identical embeddings score 1.
func Similarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Validate checks that vec has exactly dim finite components.
// A dim of zero only rejects empty vectors.
func Validate(vec []float32, dim int) error {
	if len(vec) == 0 {
		return ErrEmptyEmbedding
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("embedding component %d is not finite", i)
		}
	}
	return nil
}

// Matcher finds the closest enrolled embedding.
type Matcher struct {
	Threshold float64
	Dim       int
}

// NewMatcher returns a matcher; a non-positive threshold uses DefaultThreshold.
func NewMatcher(threshold float64, dim int) Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold, Dim: dim}
}

// Best scans every candidate and returns the one with the lowest distance.
// Candidates whose embedding length differs from the probe are skipped.
// Ties keep the earlier candidate.
func (m Matcher) Best(probe []float32, candidates []Candidate) (Match, error) {
	if err := Validate(probe, m.Dim); err != nil {
		return Match{}, err
	}
	if len(candidates) == 0 {
		return Match{}, ErrNoCandidates
	}

	best := Match{Distance: math.Inf(1)}
	for _, c := range candidates {
		d, err := Distance(probe, c.Embedding)
		if err != nil {
			continue
		}
		best.Compared++
		if d < best.Distance {
			best.StaffID = c.StaffID
			best.Name = c.Name
			best.Distance = d
		}
	}
	if best.Compared == 0 {
		return Match{}, ErrNoCandidates
	}

	best.Similarity = Similarity(best.Distance)
	best.Matched = best.Similarity >= m.Threshold
	return best, nil
}
