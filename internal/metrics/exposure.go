package metrics

import "github.com/san-kum/celltx/internal/dynamo"

// Exposure integrates the selected total over time (area under the curve)
// with the trapezoid rule across observed steps.
type Exposure struct {
	name    string
	indices []int
	area    float64
	lastT   float64
	lastV   float64
	samples int
}

func NewExposure(name string, indices []int) *Exposure {
	return &Exposure{name: name, indices: indices}
}

func (e *Exposure) Name() string {
	return e.name
}

func (e *Exposure) Observe(x dynamo.State, t float64) {
	v := sum(x, e.indices)
	if e.samples > 0 {
		e.area += 0.5 * (v + e.lastV) * (t - e.lastT)
	}
	e.lastT, e.lastV = t, v
	e.samples++
}

func (e *Exposure) Value() float64 {
	return e.area
}

func (e *Exposure) Reset() {
	e.area = 0
	e.samples = 0
}
