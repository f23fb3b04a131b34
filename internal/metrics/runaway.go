package metrics

import (
	"math"

	"github.com/san-kum/celltx/internal/dynamo"
)

// Runaway watches for magnitudes that escape a physical bound. Its value is the share of observed steps with no entity above the limit,
// so a clean run reports 1. It is published as "stability".
type Runaway struct {
	limit   float64
	over    int
	samples int

	peak      float64
	firstTime float64
	firstIdx  int
}

func NewRunaway(limit float64) *Runaway {
	r := &Runaway{limit: limit}
	r.Reset()
	return r
}

func (r *Runaway) Name() string { return "stability" }

func (r *Runaway) Observe(x dynamo.State, t float64) {
	r.samples++
	worst, idx := 0.0, -1
	for i, v := range x {
		if a := math.Abs(v); a > worst {
			worst, idx = a, i
		}
	}
	r.peak = math.Max(r.peak, worst)
	if worst <= r.limit {
		return
	}
	r.over++
	if r.firstIdx < 0 {
		r.firstTime, r.firstIdx = t, idx
	}
}

func (r *Runaway) Value() float64 {
	if r.samples == 0 {
		return 1
	}
	return 1 - float64(r.over)/float64(r.samples)
}

// First returns when the limit was first exceeded and by which entity index.
func (r *Runaway) First() (t float64, entity int, ok bool) {
	return r.firstTime, r.firstIdx, r.firstIdx >= 0
}

// Peak is the largest magnitude seen on any entity.
func (r *Runaway) Peak() float64 { return r.peak }

func (r *Runaway) Reset() {
	r.over, r.samples = 0, 0
	r.peak, r.firstTime, r.firstIdx = 0, 0, -1
}
