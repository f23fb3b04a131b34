package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/san-kum/celltx/internal/trajectory"
)

var svgPalette = []string{"#00ffff", "#ff00ff", "#ffff00", "#00ff00", "#ff8800", "#8888ff"}

// SVG renders the selected entities against time as one path each, sharing a
// y range. nil keys selects all.
func SVG(tr *trajectory.Trajectory, keys []string, width, height int) (string, error) {
	if tr.Len() < 2 {
		return "", fmt.Errorf("need at least two samples, have %d", tr.Len())
	}
	if keys == nil {
		keys = tr.Labels()
	}

	series := make([][]float64, len(keys))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, key := range keys {
		s, err := tr.Series(key)
		if err != nil {
			return "", err
		}
		series[i] = s
		for _, v := range s {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
	}

	times := tr.Times()
	minX, maxX := times[0], times[len(times)-1]
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeY == 0 {
		rangeY = 1
	}
	minY -= rangeY * 0.05
	rangeY *= 1.1

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)

	for i, s := range series {
		color := svgPalette[i%len(svgPalette)]
		fmt.Fprintf(&sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="M`, color)
		for j, v := range s {
			x := (times[j] - minX) / rangeX * float64(width)
			y := float64(height) - (v-minY)/rangeY*float64(height)
			if j == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, "<text x=\"8\" y=\"%d\" fill=\"%s\" font-family=\"monospace\" font-size=\"12\">%s</text>\n",
			16*(i+1), color, keys[i])
	}

	sb.WriteString("</svg>\n")
	return sb.String(), nil
}
