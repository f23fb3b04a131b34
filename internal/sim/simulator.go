// Package sim drives an integrator over a derivative system and owns the
// post-step work: recording history, enforcing the negativity policy and
// building the trajectory.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/trajectory"
)

// timeEps is the relative slack used to decide that the end time is reached.
const timeEps = 1e-12

type Simulator struct {
	sys        dynamo.System
	integrator dynamo.Integrator
	labels     []string
	history    HistoryWriter
	recorder   Recorder
	logger     *slog.Logger
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

type Option func(*Simulator)

// WithLabels names the state components in the trajectory. Without it the
// columns are numbered.
func WithLabels(labels []string) Option {
	return func(s *Simulator) { s.labels = labels }
}

// WithHistory records the initial state and every accepted state into h.
func WithHistory(h HistoryWriter) Option {
	return func(s *Simulator) { s.history = h }
}

func WithRecorder(r Recorder) Option {
	return func(s *Simulator) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

func New(sys dynamo.System, integrator dynamo.Integrator, opts ...Option) *Simulator {
	s := &Simulator{
		sys:        sys,
		integrator: integrator,
		recorder:   nopRecorder{},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Run integrates from x0 at t=0 to cfg.Duration. Any failure after the
// initial state is accepted is returned as a *dynamo.IntegrationError
// carrying the last good state; the partial result is returned alongside.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, _ := dynamo.ParseNegativityPolicy(string(cfg.Negativity))
	if len(x0) != s.sys.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d values, system has %d", dynamo.ErrDimensionMismatch, len(x0), s.sys.StateDim())
	}
	if !x0.IsValid() {
		return nil, dynamo.ErrInvalidState
	}

	labels := s.labels
	if labels == nil {
		labels = make([]string, len(x0))
		for i := range labels {
			labels[i] = strconv.Itoa(i)
		}
	}
	result := &Result{
		Trajectory: trajectory.New(labels),
		Metrics:    make(map[string]float64),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	start := time.Now()
	s.logger.Info("run started", "entities", len(x0), "duration", cfg.Duration, "dt", cfg.Dt, "adaptive", cfg.Adaptive)

	x := x0.Clone()
	t := 0.0
	if err := s.accept(result, x, t); err != nil {
		return s.finish(result, start, err)
	}

	dt := cfg.Dt
	if cfg.Adaptive {
		dt = math.Min(cfg.Dt, cfg.MaxDt)
	}
	step := 0
	for cfg.Duration-t > timeEps*math.Max(1, cfg.Duration) {
		if err := ctx.Err(); err != nil {
			return s.finish(result, start, s.fail(step, t, x, fmt.Errorf("%w: %w", dynamo.ErrContextCanceled, err)))
		}

		h := math.Min(dt, cfg.Duration-t)
		var (
			next dynamo.State
			err  error
		)
		if cfg.Adaptive {
			var suggested float64
			next, suggested, err = s.adaptiveStep(x, t, h, cfg.Tolerance)
			if errors.Is(err, dynamo.ErrStepRejected) {
				result.Rejected++
				s.recorder.StepRejected()
				if suggested < cfg.MinDt {
					return s.finish(result, start, s.fail(step, t, x, fmt.Errorf("%w: dt=%g", dynamo.ErrStepTooSmall, suggested)))
				}
				dt = suggested
				continue
			}
			dt = math.Max(cfg.MinDt, math.Min(suggested, cfg.MaxDt))
		} else {
			next, err = s.integrator.Step(s.sys, x, t, h)
		}
		if err != nil {
			return s.finish(result, start, s.fail(step, t, x, err))
		}
		if !next.IsValid() {
			return s.finish(result, start, s.fail(step, t, x, dynamo.ErrInvalidState))
		}

		tNext := t + h
		if !cfg.Adaptive {
			// avoid accumulating rounding error over many fixed steps
			tNext = math.Min(float64(step+1)*cfg.Dt, cfg.Duration)
		}
		if err := s.applyPolicy(policy, result, next, tNext); err != nil {
			return s.finish(result, start, s.fail(step, t, x, err))
		}
		if err := s.accept(result, next, tNext); err != nil {
			return s.finish(result, start, s.fail(step, t, x, err))
		}

		x, t = next, tNext
		step++
		result.StepsTaken++
		s.recorder.StepAccepted()
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return s.finish(result, start, nil)
}

// accept is the post-step hook: history first so the next derivative
// evaluation can read it, then the trajectory and observers.
func (s *Simulator) accept(result *Result, x dynamo.State, t float64) error {
	if s.history != nil {
		if err := s.history.RecordState(t, x); err != nil {
			return err
		}
	}
	if err := result.Trajectory.Append(t, x); err != nil {
		return err
	}
	for _, m := range s.metrics {
		m.Observe(x, t)
	}
	for _, obs := range s.observers {
		obs.OnStep(x, t)
	}
	return nil
}

func (s *Simulator) applyPolicy(policy dynamo.NegativityPolicy, result *Result, x dynamo.State, t float64) error {
	if policy == dynamo.NegativityAllow {
		return nil
	}
	neg := x.Negatives()
	if len(neg) == 0 {
		return nil
	}
	if policy == dynamo.NegativityReject {
		return fmt.Errorf("%w: component %d = %g at t=%g", dynamo.ErrNegativeState, neg[0], x[neg[0]], t)
	}
	for _, i := range neg {
		s.logger.Warn("clamped negative magnitude", "entity", s.label(i), "value", x[i], "t", t)
		x[i] = 0
	}
	result.Clamps += len(neg)
	s.recorder.Clamped(len(neg))
	return nil
}

func (s *Simulator) label(i int) string {
	if i < len(s.labels) {
		return s.labels[i]
	}
	return strconv.Itoa(i)
}

func (s *Simulator) fail(step int, t float64, x dynamo.State, err error) error {
	return &dynamo.IntegrationError{Step: step, Time: t, State: x.Clone(), Wrapped: err}
}

func (s *Simulator) finish(result *Result, start time.Time, err error) (*Result, error) {
	result.Elapsed = time.Since(start)
	s.recorder.RunFinished(result.Elapsed, err)
	if err != nil {
		var ie *dynamo.IntegrationError
		if errors.As(err, &ie) {
			s.logger.Error("run failed", "err", err, "last_t", ie.Time, "step", ie.Step)
		} else {
			s.logger.Error("run failed", "err", err)
		}
		return result, err
	}
	s.logger.Info("run finished", "steps", result.StepsTaken, "rejected", result.Rejected, "clamps", result.Clamps, "elapsed", result.Elapsed)
	return result, nil
}

// adaptiveStep uses the integrator's own error control when it has one and
// step doubling otherwise.
func (s *Simulator) adaptiveStep(x dynamo.State, t, dt, tol float64) (dynamo.State, float64, error) {
	if adaptive, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok {
		return adaptive.StepAdaptive(s.sys, x, t, dt, tol)
	}

	x1, err := s.integrator.Step(s.sys, x, t, dt)
	if err != nil {
		return nil, dt, err
	}
	xHalf, err := s.integrator.Step(s.sys, x, t, dt/2)
	if err != nil {
		return nil, dt, err
	}
	x2, err := s.integrator.Step(s.sys, xHalf, t+dt/2, dt/2)
	if err != nil {
		return nil, dt, err
	}

	errNorm := x1.Sub(x2).Norm()
	if errNorm > tol {
		return nil, dt / 2, dynamo.ErrStepRejected
	}
	if errNorm < tol/10 {
		return x2, dt * 2, nil
	}
	return x2, dt, nil
}
