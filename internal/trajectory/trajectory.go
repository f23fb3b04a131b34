// Package trajectory records the magnitudes of every entity at each accepted
// integration step.
package trajectory

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDimension  = errors.New("trajectory: state dimension does not match entity count")
	ErrTimeOrder  = errors.New("trajectory: samples must be strictly increasing in time")
	ErrUnknownKey = errors.New("trajectory: unknown entity")
)

// Trajectory is an ordered sequence of (time, magnitude per entity). Columns
// are keyed by entity identity strings.
type Trajectory struct {
	labels []string
	index  map[string]int
	times  []float64
	states [][]float64
}

func New(labels []string) *Trajectory {
	tr := &Trajectory{
		labels: append([]string(nil), labels...),
		index:  make(map[string]int, len(labels)),
	}
	for i, l := range labels {
		tr.index[l] = i
	}
	return tr
}

// Append copies x as the sample at time t.
func (tr *Trajectory) Append(t float64, x []float64) error {
	if len(x) != len(tr.labels) {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(x), len(tr.labels))
	}
	if n := len(tr.times); n > 0 && t <= tr.times[n-1] {
		return fmt.Errorf("%w: t=%g after t=%g", ErrTimeOrder, t, tr.times[n-1])
	}
	row := make([]float64, len(x))
	copy(row, x)
	tr.times = append(tr.times, t)
	tr.states = append(tr.states, row)
	return nil
}

func (tr *Trajectory) Len() int { return len(tr.times) }

func (tr *Trajectory) Labels() []string { return append([]string(nil), tr.labels...) }

func (tr *Trajectory) Times() []float64 { return append([]float64(nil), tr.times...) }

func (tr *Trajectory) Time(i int) float64 { return tr.times[i] }

// State returns a copy of sample i.
func (tr *Trajectory) State(i int) []float64 {
	return append([]float64(nil), tr.states[i]...)
}

// At returns sample i keyed by entity identity.
func (tr *Trajectory) At(i int) map[string]float64 {
	out := make(map[string]float64, len(tr.labels))
	for j, l := range tr.labels {
		out[l] = tr.states[i][j]
	}
	return out
}

// Final returns the last sample and its time.
func (tr *Trajectory) Final() ([]float64, float64, bool) {
	n := len(tr.times)
	if n == 0 {
		return nil, 0, false
	}
	return tr.State(n - 1), tr.times[n-1], true
}

// Series returns the magnitude of one entity over time.
func (tr *Trajectory) Series(label string) ([]float64, error) {
	j, ok := tr.index[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, label)
	}
	out := make([]float64, len(tr.states))
	for i, row := range tr.states {
		out[i] = row[j]
	}
	return out, nil
}

// Totals sums the entities whose label matches keep at every sample.
func (tr *Trajectory) Totals(keep func(label string) bool) []float64 {
	out := make([]float64, len(tr.states))
	for i, row := range tr.states {
		for j, l := range tr.labels {
			if keep == nil || keep(l) {
				out[i] += row[j]
			}
		}
	}
	return out
}

// Peak returns the largest magnitude reached by each entity.
func (tr *Trajectory) Peak() map[string]float64 {
	out := make(map[string]float64, len(tr.labels))
	for j, l := range tr.labels {
		for i, row := range tr.states {
			if i == 0 || row[j] > out[l] {
				out[l] = row[j]
			}
		}
	}
	return out
}

// Value interpolates the magnitude of label at time t within the recorded
// range.
func (tr *Trajectory) Value(label string, t float64) (float64, error) {
	j, ok := tr.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKey, label)
	}
	n := len(tr.times)
	if n == 0 || t < tr.times[0] || t > tr.times[n-1] {
		return 0, fmt.Errorf("trajectory: t=%g outside recorded range", t)
	}
	i := sort.SearchFloat64s(tr.times, t)
	if tr.times[i] == t {
		return tr.states[i][j], nil
	}
	t0, t1 := tr.times[i-1], tr.times[i]
	v0, v1 := tr.states[i-1][j], tr.states[i][j]
	return v0 + (v1-v0)*(t-t0)/(t1-t0), nil
}
