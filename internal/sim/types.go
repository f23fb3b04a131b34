package sim

import (
	"time"

	"github.com/san-kum/celltx/internal/trajectory"
)

// HistoryWriter receives every accepted state. history.Store satisfies it.
type HistoryWriter interface {
	RecordState(t float64, x []float64) error
}

// Recorder counts run events. metrics.Collector satisfies it.
type Recorder interface {
	StepAccepted()
	StepRejected()
	Clamped(n int)
	RunFinished(d time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) StepAccepted()                    {}
func (nopRecorder) StepRejected()                    {}
func (nopRecorder) Clamped(int)                      {}
func (nopRecorder) RunFinished(time.Duration, error) {}

type Result struct {
	Trajectory *trajectory.Trajectory
	Metrics    map[string]float64
	StepsTaken int
	Rejected   int
	Clamps     int
	Elapsed    time.Duration
}
