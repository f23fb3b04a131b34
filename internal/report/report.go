package report

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/celltx/internal/graph"
	"github.com/san-kum/celltx/internal/sim"
	"github.com/san-kum/celltx/internal/trajectory"
)

// Inspect lists entities with their initial magnitudes, the parameter
// vector, and every edge and term of g.
func Inspect(g *graph.Graph, x0 []float64) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("model %s", g.Name())))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s  %s %s  %s %s\n\n",
		Label.Render("entities"), Value.Render(fmt.Sprint(g.Len())),
		Label.Render("edges"), Value.Render(fmt.Sprint(g.NumEdges())),
		Label.Render("terms"), Value.Render(fmt.Sprint(g.NumTerms())))

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tENTITY\tKIND\tINITIAL")
	for _, e := range g.Entities() {
		v := 0.0
		if e.Index < len(x0) {
			v = x0[e.Index]
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%g\n", e.Index, e.ID, e.Kind, v)
	}
	w.Flush()
	b.WriteString("\n")

	w = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tPARAM\tVALUE\tDESCRIPTION")
	for i, p := range g.Params() {
		fmt.Fprintf(w, "%d\t%s\t%g\t%s\n", i, p.Name, p.Value, p.Description)
	}
	w.Flush()
	b.WriteString("\n")

	w = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EDGE\tKIND\tSOURCE\tTARGET\tRATE")
	for _, e := range g.Edges() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Relationship, e.Kind,
			g.Entity(e.Source).ID, g.Entity(e.Target).ID, e.Fn)
	}
	w.Flush()

	if g.NumTerms() > 0 {
		b.WriteString("\n")
		w = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TERM\tKIND\tENTITY\tRATE")
		for _, t := range g.Terms() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Kind, g.Entity(t.Entity).ID, t.Fn)
		}
		w.Flush()
	}
	return b.String()
}

// Summary shows run counters, metrics in name order and a sparkline of
// every entity.
func Summary(runID string, result *sim.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Label.Render("run"), Value.Render(runID))
	fmt.Fprintf(&b, "%s %d  %s %d  %s %v\n",
		Label.Render("steps"), result.StepsTaken,
		Label.Render("rejected"), result.Rejected,
		Label.Render("elapsed"), result.Elapsed)
	if result.Clamps > 0 {
		b.WriteString(Warn.Render(fmt.Sprintf("clamped %d negative magnitudes", result.Clamps)))
		b.WriteString("\n")
	}

	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString("\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s %s\n", Label.Render(fmt.Sprintf("%-22s", name)), Value.Render(fmt.Sprintf("%.6g", result.Metrics[name])))
	}

	tr := result.Trajectory
	if tr == nil || tr.Len() == 0 {
		return Panel.Render(b.String())
	}
	b.WriteString("\n")
	b.WriteString(Trends(tr, 30))
	return Panel.Render(b.String())
}

// Trends prints one sparkline and final value per entity.
func Trends(tr *trajectory.Trajectory, width int) string {
	var b strings.Builder
	final, _, _ := tr.Final()
	for j, label := range tr.Labels() {
		series, _ := tr.Series(label)
		fmt.Fprintf(&b, "%s %s %s\n", Sparkline(series, width), Value.Render(fmt.Sprintf("%12.5g", final[j])), label)
	}
	return b.String()
}

// Plot draws one chart per selected entity; nil keys selects all.
func Plot(tr *trajectory.Trajectory, keys []string, height, width int) (string, error) {
	if tr.Len() == 0 {
		return "", fmt.Errorf("no data to plot")
	}
	if keys == nil {
		keys = tr.Labels()
	}

	var b strings.Builder
	for _, key := range keys {
		data, err := tr.Series(key)
		if err != nil {
			return "", err
		}
		chart := asciigraph.Plot(data,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption(key),
		)
		b.WriteString(chart)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}
