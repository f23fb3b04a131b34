// Package history keeps the time-indexed magnitudes of every entity during
// one simulation run, for delay and window terms in edge functions.
//
// The store is append-only and has a single writer (the integration loop).
// Readers may run concurrently; a whole state is recorded under one lock so
// no reader observes a partially written step.
package history

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrOutOfRange is matched by every OutOfRangeError.
	ErrOutOfRange = errors.New("history: time precedes first recorded sample")

	ErrNonMonotonic = errors.New("history: record out of time order")
	ErrUnknown      = errors.New("history: unknown entity index")
	// ErrRetention reports a retention window shorter than a lag read from
	// the store.
	ErrRetention = errors.New("history: retention shorter than longest lag")
)

// OutOfRangeError reports a lookup before the first retained sample of an
// entity. First is NaN when nothing has been recorded yet.
type OutOfRangeError struct {
	Entity string
	Time   float64
	First  float64
}

func (e *OutOfRangeError) Error() string {
	if math.IsNaN(e.First) {
		return fmt.Sprintf("history: %s has no samples (lookup at t=%g)", e.Entity, e.Time)
	}
	return fmt.Sprintf("history: %s lookup at t=%g precedes first sample t=%g", e.Entity, e.Time, e.First)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }

// start is the time of the first sample ever recorded; it survives
// trimming and separates prehistory from dropped samples.
type series struct {
	times   []float64
	values  []float64
	start   float64
	started bool
}

type Store struct {
	mu        sync.RWMutex
	ids       []string
	series    []series
	defaults  map[int]float64
	retention float64
}

type Option func(*Store)

// WithRetention drops samples older than window behind the latest record.
// Zero keeps everything.
func WithRetention(window float64) Option {
	return func(s *Store) { s.retention = window }
}

// New creates an empty store for len(ids) entities; ids label errors.
func New(ids []string, opts ...Option) *Store {
	s := &Store{
		ids:      append([]string(nil), ids...),
		series:   make([]series, len(ids)),
		defaults: make(map[int]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Size() int { return len(s.series) }

// Retention is the configured window; zero means unbounded.
func (s *Store) Retention() float64 { return s.retention }

// SetDefault supplies the magnitude assumed for entity before its first
// sample, so delays longer than the elapsed time resolve. The default keeps
// applying before that sample after retention has dropped it.
func (s *Store) SetDefault(entity int, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entity < 0 || entity >= len(s.series) {
		return fmt.Errorf("%w: %d", ErrUnknown, entity)
	}
	s.defaults[entity] = v
	return nil
}

// Record appends one sample. Recording again at the latest time replaces
// that sample.
func (s *Store) Record(entity int, t, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(entity, t, v)
}

// RecordState appends x[i] for every entity at time t atomically.
func (s *Store) RecordState(t float64, x []float64) error {
	if len(x) != len(s.series) {
		return fmt.Errorf("history: state has %d components, store has %d", len(x), len(s.series))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range x {
		if err := s.record(i, t, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) record(entity int, t, v float64) error {
	if entity < 0 || entity >= len(s.series) {
		return fmt.Errorf("%w: %d", ErrUnknown, entity)
	}
	sr := &s.series[entity]
	n := len(sr.times)
	if n > 0 {
		last := sr.times[n-1]
		if t < last {
			return fmt.Errorf("%w: %s at t=%g after t=%g", ErrNonMonotonic, s.ids[entity], t, last)
		}
		if t == last {
			sr.values[n-1] = v
			return nil
		}
	}
	if !sr.started {
		sr.start, sr.started = t, true
	}
	sr.times = append(sr.times, t)
	sr.values = append(sr.values, v)
	if s.retention > 0 {
		s.trim(sr, t-s.retention)
	}
	return nil
}

// trim keeps the last sample at or before cutoff so lookups at the cutoff
// can still interpolate.
func (s *Store) trim(sr *series, cutoff float64) {
	k := sort.SearchFloat64s(sr.times, cutoff)
	if k < len(sr.times) && sr.times[k] == cutoff {
		k++
	}
	k--
	if k <= 0 {
		return
	}
	sr.times = append(sr.times[:0:0], sr.times[k:]...)
	sr.values = append(sr.values[:0:0], sr.values[k:]...)
}

// Lookup returns the magnitude of entity at t: the recorded value on an
// exact match, linear interpolation between neighbouring samples, and the
// latest value for t beyond the last sample.
func (s *Store) Lookup(entity int, t float64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entity < 0 || entity >= len(s.series) {
		return 0, fmt.Errorf("%w: %d", ErrUnknown, entity)
	}
	return s.valueAt(entity, t)
}

func (s *Store) valueAt(entity int, t float64) (float64, error) {
	sr := &s.series[entity]
	n := len(sr.times)
	if n == 0 || t < sr.times[0] {
		if def, ok := s.defaults[entity]; ok && (!sr.started || t < sr.start) {
			return def, nil
		}
		first := math.NaN()
		if n > 0 {
			first = sr.times[0]
		}
		return 0, &OutOfRangeError{Entity: s.ids[entity], Time: t, First: first}
	}
	if t >= sr.times[n-1] {
		return sr.values[n-1], nil
	}
	i := sort.SearchFloat64s(sr.times, t)
	if sr.times[i] == t {
		return sr.values[i], nil
	}
	t0, t1 := sr.times[i-1], sr.times[i]
	v0, v1 := sr.values[i-1], sr.values[i]
	return v0 + (v1-v0)*(t-t0)/(t1-t0), nil
}

// Average is the mean of the interpolated magnitude over [from, to].
func (s *Store) Average(entity int, from, to float64) (float64, error) {
	if to < from {
		return 0, fmt.Errorf("history: window end %g before start %g", to, from)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entity < 0 || entity >= len(s.series) {
		return 0, fmt.Errorf("%w: %d", ErrUnknown, entity)
	}
	if to == from {
		return s.valueAt(entity, from)
	}

	sr := &s.series[entity]
	points := []float64{from}
	i := sort.SearchFloat64s(sr.times, from)
	for ; i < len(sr.times) && sr.times[i] < to; i++ {
		if sr.times[i] > from {
			points = append(points, sr.times[i])
		}
	}
	points = append(points, to)

	area := 0.0
	prev, err := s.valueAt(entity, points[0])
	if err != nil {
		return 0, err
	}
	for k := 1; k < len(points); k++ {
		v, err := s.valueAt(entity, points[k])
		if err != nil {
			return 0, err
		}
		area += 0.5 * (prev + v) * (points[k] - points[k-1])
		prev = v
	}
	return area / (to - from), nil
}

// Len returns the number of retained samples for entity.
func (s *Store) Len(entity int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entity < 0 || entity >= len(s.series) {
		return 0
	}
	return len(s.series[entity].times)
}

// Span returns the first and last retained sample times of entity.
func (s *Store) Span(entity int) (first, last float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if entity < 0 || entity >= len(s.series) || len(s.series[entity].times) == 0 {
		return 0, 0, false
	}
	ts := s.series[entity].times
	return ts[0], ts[len(ts)-1], true
}

// Reset discards all samples and defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = make([]series, len(s.ids))
	s.defaults = make(map[int]float64)
}
