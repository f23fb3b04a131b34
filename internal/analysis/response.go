package analysis

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/celltx/internal/dynamo"
	"github.com/san-kum/celltx/internal/optim"
	"github.com/san-kum/celltx/internal/sim"
)

// Sweep names the constant to vary and the entity to record.
type Sweep struct {
	Param  string
	Values []float64
	Entity string
	// Tail is the fraction of samples at the end of each run scanned for
	// Min and Max. Zero means the last quarter.
	Tail    float64
	Workers int
}

// ResponsePoint is where Entity ended up for one value of Param.
type ResponsePoint struct {
	Param float64
	Final float64
	Min   float64
	Max   float64
	Err   error
}

// DoseResponse runs one simulation per value. Failed runs are reported
// per point; the returned error is for setup failures only.
func DoseResponse(ctx context.Context, p optim.Preparer, cfg dynamo.Config, sw Sweep) ([]ResponsePoint, error) {
	if len(sw.Values) == 0 {
		return nil, fmt.Errorf("analysis: no values to sweep for %s", sw.Param)
	}
	tail := sw.Tail
	if tail <= 0 || tail > 1 {
		tail = 0.25
	}

	jobs := make([]sim.Job, len(sw.Values))
	for i, v := range sw.Values {
		s, x0, err := p.Prepare(map[string]float64{sw.Param: v})
		if err != nil {
			return nil, fmt.Errorf("analysis: %s=%g: %w", sw.Param, v, err)
		}
		jobs[i] = sim.Job{Sim: s, X0: x0}
	}

	runs, errs := sim.NewEnsemble(jobs, sw.Workers).RunAll(ctx, cfg)

	points := make([]ResponsePoint, len(sw.Values))
	for i, run := range runs {
		points[i] = ResponsePoint{Param: sw.Values[i], Err: errs[i]}
		if errs[i] != nil {
			continue
		}
		series, err := run.Trajectory.Series(sw.Entity)
		if err != nil {
			return nil, err
		}
		start := len(series) - int(math.Ceil(tail*float64(len(series))))
		pt := &points[i]
		pt.Final = series[len(series)-1]
		pt.Min, pt.Max = series[start], series[start]
		for _, v := range series[start:] {
			pt.Min = math.Min(pt.Min, v)
			pt.Max = math.Max(pt.Max, v)
		}
	}
	return points, nil
}

// ResponseToASCII draws the Min to Max band of each point as a column with
// the final value marked.
func ResponseToASCII(points []ResponsePoint, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if p.Err != nil {
			continue
		}
		minVal = math.Min(minVal, p.Min)
		maxVal = math.Max(maxVal, p.Max)
	}
	if math.IsInf(minVal, 1) {
		return ""
	}
	if maxVal == minVal {
		maxVal = minVal + 1
	}

	canvas := newCanvas(width, height)
	row := func(v float64) int {
		return height - 1 - int((v-minVal)/(maxVal-minVal)*float64(height-1))
	}
	for i, p := range points {
		if p.Err != nil {
			continue
		}
		col := i * width / len(points)
		for r := row(p.Max); r <= row(p.Min); r++ {
			canvas[r][col] = '│'
		}
		canvas[row(p.Final)][col] = '•'
	}
	return render(canvas)
}

func newCanvas(width, height int) [][]rune {
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}
	return canvas
}

func render(canvas [][]rune) string {
	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
