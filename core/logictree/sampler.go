package logictree

import (
	"sort"

	"ltcombine/core/determinism"
	"ltcombine/internal/errors"
)

// Sampler draws branch indexes in proportion to their weight using a
// cumulative distribution built once.
type Sampler struct {
	cumulative   []float64
	total        float64
	positive     int
	lastPositive int
}

// NewSampler builds a sampler over weights. Zero weights are allowed and are
// never drawn; the total must be positive.
func NewSampler(weights []float64) (*Sampler, error) {
	s := &Sampler{
		cumulative:   make([]float64, len(weights)),
		lastPositive: -1,
	}
	sum := 0.0
	for i, w := range weights {
		if err := determinism.CheckWeight(w); err != nil {
			return nil, errors.Precondition("sampler weight %d: %v", i, err)
		}
		sum += w
		s.cumulative[i] = sum
		if w > 0 {
			s.positive++
			s.lastPositive = i
		}
	}
	if sum <= 0 {
		return nil, errors.Precondition("cannot sample from %d branches with zero total weight", len(weights))
	}
	s.total = sum
	return s, nil
}

// Draw returns a random index
func (s *Sampler) Draw(src determinism.Source) int {
	u := src.Float64() * s.total
	i := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > u
	})
	if i >= len(s.cumulative) {
		// u rounded up to the total
		return s.lastPositive
	}
	return i
}

// Size returns the number of indexes
func (s *Sampler) Size() int { return len(s.cumulative) }

// Positive returns the number of indexes with non-zero weight
func (s *Sampler) Positive() int { return s.positive }

// Total returns the summed weight
func (s *Sampler) Total() float64 { return s.total }
