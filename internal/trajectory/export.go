package trajectory

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/celltx/internal/graph"
)

// WriteCSV writes a header row "time,<identity>..." followed by one row per
// sample. Values use the shortest representation that round-trips.
func (tr *Trajectory) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"time"}, tr.labels...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, t := range tr.times {
		row[0] = strconv.FormatFloat(t, 'g', -1, 64)
		for j, v := range tr.states[i] {
			row[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses the output of WriteCSV. Column keys must be valid entity
// identities.
func ReadCSV(r io.Reader) (*Trajectory, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("trajectory: read header: %w", err)
	}
	if len(header) == 0 || header[0] != "time" {
		return nil, fmt.Errorf("trajectory: first column must be time")
	}
	for _, l := range header[1:] {
		if _, err := graph.ParseEntityID(l); err != nil {
			return nil, err
		}
	}

	tr := New(header[1:])
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		vals := make([]float64, len(rec))
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("trajectory: line %d column %d: %w", line, j+1, err)
			}
			vals[j] = v
		}
		if err := tr.Append(vals[0], vals[1:]); err != nil {
			return nil, fmt.Errorf("trajectory: line %d: %w", line, err)
		}
	}
	return tr, nil
}

type jsonSample struct {
	Time   float64            `json:"t"`
	Values map[string]float64 `json:"values"`
}

type jsonTrajectory struct {
	Entities []string     `json:"entities"`
	Samples  []jsonSample `json:"samples"`
}

func (tr *Trajectory) MarshalJSON() ([]byte, error) {
	out := jsonTrajectory{Entities: tr.labels, Samples: make([]jsonSample, len(tr.times))}
	for i, t := range tr.times {
		out.Samples[i] = jsonSample{Time: t, Values: tr.At(i)}
	}
	return json.Marshal(out)
}

func (tr *Trajectory) UnmarshalJSON(data []byte) error {
	var in jsonTrajectory
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	fresh := New(in.Entities)
	for _, s := range in.Samples {
		x := make([]float64, len(in.Entities))
		for j, l := range in.Entities {
			v, ok := s.Values[l]
			if !ok {
				return fmt.Errorf("trajectory: sample t=%g missing %s", s.Time, l)
			}
			x[j] = v
		}
		if err := fresh.Append(s.Time, x); err != nil {
			return err
		}
	}
	*tr = *fresh
	return nil
}
