package metrics

import (
	"math"

	"github.com/san-kum/celltx/internal/dynamo"
)

// sum adds the selected components of x; nil selects all.
func sum(x dynamo.State, indices []int) float64 {
	if indices == nil {
		return x.Sum()
	}
	s := 0.0
	for _, i := range indices {
		s += x[i]
	}
	return s
}

// TotalMass reports the summed magnitude of the selected entities at the
// last observed step.
type TotalMass struct {
	name    string
	indices []int
	total   float64
	samples int
}

func NewTotalMass(name string, indices []int) *TotalMass {
	return &TotalMass{name: name, indices: indices}
}

func (m *TotalMass) Name() string { return m.name }

func (m *TotalMass) Observe(x dynamo.State, t float64) {
	m.total = sum(x, m.indices)
	m.samples++
}

func (m *TotalMass) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.total
}

func (m *TotalMass) Reset() {
	m.total = 0
	m.samples = 0
}

// MassDrift is the largest relative deviation of the selected total from its
// first observed value. Closed models should keep it near zero.
type MassDrift struct {
	name     string
	indices  []int
	initial  float64
	maxDrift float64
	samples  int
}

func NewMassDrift(indices []int) *MassDrift {
	return &MassDrift{name: "mass_drift", indices: indices}
}

func (m *MassDrift) Name() string { return m.name }

func (m *MassDrift) Observe(x dynamo.State, t float64) {
	total := sum(x, m.indices)
	if m.samples == 0 {
		m.initial = total
	}
	m.samples++

	if m.initial != 0 {
		drift := math.Abs(total-m.initial) / math.Abs(m.initial)
		m.maxDrift = math.Max(m.maxDrift, drift)
	}
}

func (m *MassDrift) Value() float64 {
	return m.maxDrift
}

func (m *MassDrift) Reset() {
	m.initial = 0
	m.maxDrift = 0
	m.samples = 0
}
