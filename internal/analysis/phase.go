package analysis

import (
	"math"

	"github.com/san-kum/celltx/internal/trajectory"
)

// PhasePortrait pairs the magnitudes of two entities at every sample.
type PhasePortrait struct {
	XKey, YKey string
	X, Y       []float64
}

func NewPhasePortrait(tr *trajectory.Trajectory, xKey, yKey string) (*PhasePortrait, error) {
	xs, err := tr.Series(xKey)
	if err != nil {
		return nil, err
	}
	ys, err := tr.Series(yKey)
	if err != nil {
		return nil, err
	}
	return &PhasePortrait{XKey: xKey, YKey: yKey, X: xs, Y: ys}, nil
}

// ASCII plots the portrait with 10% padding around the data. The start is
// marked 'o' and the end '*'.
func (p *PhasePortrait) ASCII(width, height int) string {
	if len(p.X) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	minX, maxX := bounds(p.X)
	minY, maxY := bounds(p.Y)
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	canvas := newCanvas(width, height)
	cell := func(i int) (int, int) {
		col := int((p.X[i] - minX) / rangeX * float64(width-1))
		row := height - 1 - int((p.Y[i]-minY)/rangeY*float64(height-1))
		return row, col
	}
	for i := range p.X {
		r, c := cell(i)
		canvas[r][c] = '•'
	}
	r, c := cell(0)
	canvas[r][c] = 'o'
	r, c = cell(len(p.X) - 1)
	canvas[r][c] = '*'
	return render(canvas)
}

func bounds(v []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// SteadyState returns the first sample time after which no magnitude moves
// faster than tol per unit time. ok is false when the run never settles.
func SteadyState(tr *trajectory.Trajectory, tol float64) (t float64, ok bool) {
	n := tr.Len()
	if n < 2 {
		return 0, false
	}
	settled := n - 1
	for i := n - 1; i > 0; i-- {
		dt := tr.Time(i) - tr.Time(i-1)
		prev, cur := tr.State(i-1), tr.State(i)
		moving := false
		for j := range cur {
			if math.Abs(cur[j]-prev[j])/dt > tol {
				moving = true
				break
			}
		}
		if moving {
			break
		}
		settled = i - 1
	}
	if settled == n-1 {
		return 0, false
	}
	return tr.Time(settled), true
}
