// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package preproc runs the per-file EEG preprocessing pipeline: spatial
// filtering, lead field application, normalization and standardization,
// ranking, thresholding, envelopes, ROI averaging and epoch extraction.
package preproc

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccnlab/esi/markers"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
)

// DataKind tracks the value semantics of a maps block through the pipeline.
type DataKind int

const (
	// KindScalar is signed scalar data (raw EEG, signed Z-Scores).
	KindScalar DataKind = iota

	// KindPositive is non-negative scalar data (norms, envelopes).
	KindPositive

	// KindVector is 3-components-per-point data (vectorial ESI).
	KindVector
)

// Maps is a block of time frames by channels (electrodes, solution points
// or ROIs). One row is one map.
type Maps struct {
	Vals         [][]float32 `desc:"values, time frames x channels"`
	Chans        []string    `desc:"channel names"`
	SamplingFreq float64     `desc:"sampling frequency in Hz, 0 when the timeline is disrupted"`
	Kind         DataKind    `desc:"value semantics of the block"`
}

// NewMaps returns a zeroed block of the given size.
func NewMaps(numTF, numCh int) *Maps {
	m := &Maps{Vals: make([][]float32, numTF)}
	for i := range m.Vals {
		m.Vals[i] = make([]float32, numCh)
	}
	return m
}

// NumTF returns the number of time frames.
func (m *Maps) NumTF() int { return len(m.Vals) }

// NumCh returns the number of channels.
func (m *Maps) NumCh() int {
	if len(m.Vals) == 0 {
		return 0
	}
	return len(m.Vals[0])
}

// Clone returns a deep copy.
func (m *Maps) Clone() *Maps {
	nm := NewMaps(m.NumTF(), m.NumCh())
	for i := range m.Vals {
		copy(nm.Vals[i], m.Vals[i])
	}
	nm.Chans = append([]string(nil), m.Chans...)
	nm.SamplingFreq = m.SamplingFreq
	nm.Kind = m.Kind
	return nm
}

// GFP returns the global field power track: the spatial standard deviation
// of each map, against the average reference for signed data and against
// zero for absolute data.
func (m *Maps) GFP() []float64 {
	gfp := make([]float64, m.NumTF())
	nch := float64(m.NumCh())
	if nch == 0 {
		return gfp
	}
	for t, row := range m.Vals {
		mean := 0.0
		if m.Kind == KindScalar {
			for _, v := range row {
				mean += float64(v)
			}
			mean /= nch
		}
		ss := 0.0
		for _, v := range row {
			d := float64(v) - mean
			ss += d * d
		}
		gfp[t] = math.Sqrt(ss / nch)
	}
	return gfp
}

// ReadFile loads a tab-separated maps file: one header row of channel
// names, then one row per time frame. The sampling frequency is carried by
// the pipeline configuration, not the file.
func ReadFile(fname string) (*Maps, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dt := &etable.Table{}
	if err := dt.ReadCSV(f, etable.Tab); err != nil {
		return nil, fmt.Errorf("preproc: reading %s: %w", fname, err)
	}
	numCh := len(dt.Cols)
	m := NewMaps(dt.Rows, numCh)
	m.Chans = make([]string, numCh)
	copy(m.Chans, dt.ColNames)
	for ci := 0; ci < numCh; ci++ {
		col := dt.Cols[ci]
		for r := 0; r < dt.Rows; r++ {
			m.Vals[r][ci] = float32(col.FloatVal1D(r))
		}
	}
	return m, nil
}

// WriteFile writes the whole block as one tab-separated file.
func (m *Maps) WriteFile(fname string) error {
	whole := markers.List{{From: 0, To: int64(m.NumTF() - 1)}}
	return m.WriteEpochs(fname, whole)
}

// WriteEpochs writes only the time frames covered by the given marker list,
// in order.
func (m *Maps) WriteEpochs(fname string, epochs markers.List) error {
	if err := os.MkdirAll(filepath.Dir(fname), 0o755); err != nil {
		return err
	}
	dt := m.toTable(epochs)
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	dt.WriteCSVHeaders(f, etable.Tab)
	for r := 0; r < dt.Rows; r++ {
		dt.WriteCSVRow(f, r, etable.Tab)
	}
	return nil
}

func (m *Maps) toTable(epochs markers.List) *etable.Table {
	numCh := m.NumCh()
	sch := make(etable.Schema, numCh)
	for ci := 0; ci < numCh; ci++ {
		name := fmt.Sprintf("ch%d", ci+1)
		if ci < len(m.Chans) && m.Chans[ci] != "" {
			name = m.Chans[ci]
		}
		sch[ci] = etable.Column{name, etensor.FLOAT64, nil, nil}
	}
	rows := 0
	for _, ep := range epochs {
		rows += int(ep.Len())
	}
	dt := &etable.Table{}
	dt.SetFromSchema(sch, rows)
	row := 0
	for _, ep := range epochs {
		for t := ep.From; t <= ep.To; t++ {
			if t < 0 || t >= int64(m.NumTF()) {
				continue
			}
			for ci := 0; ci < numCh; ci++ {
				dt.SetCellFloat(dt.ColNames[ci], row, float64(m.Vals[t][ci]))
			}
			row++
		}
	}
	return dt
}

// ReadMarkersFile loads a sidecar marker file (tab-separated From, To,
// Code, Name, Type). A missing file returns an empty list.
func ReadMarkersFile(fname string) markers.List {
	f, err := os.Open(fname)
	if err != nil {
		return nil
	}
	defer f.Close()
	dt := &etable.Table{}
	if err := dt.ReadCSV(f, etable.Tab); err != nil {
		return nil
	}
	var out markers.List
	for r := 0; r < dt.Rows; r++ {
		out = append(out, markers.Marker{
			From: int64(dt.CellFloat("From", r)),
			To:   int64(dt.CellFloat("To", r)),
			Code: int(dt.CellFloat("Code", r)),
			Name: dt.CellString("Name", r),
			Type: markers.Type(int(dt.CellFloat("Type", r))),
		})
	}
	out.SortAndClean()
	return out
}

// WriteMarkersFile writes a sidecar marker file next to a data file.
func WriteMarkersFile(fname string, l markers.List) error {
	dt := &etable.Table{}
	dt.SetFromSchema(etable.Schema{
		{"From", etensor.INT64, nil, nil},
		{"To", etensor.INT64, nil, nil},
		{"Code", etensor.INT64, nil, nil},
		{"Name", etensor.STRING, nil, nil},
		{"Type", etensor.INT64, nil, nil},
	}, len(l))
	for r, mk := range l {
		dt.SetCellFloat("From", r, float64(mk.From))
		dt.SetCellFloat("To", r, float64(mk.To))
		dt.SetCellFloat("Code", r, float64(mk.Code))
		dt.SetCellString("Name", r, mk.Name)
		dt.SetCellFloat("Type", r, float64(mk.Type))
	}
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	dt.WriteCSVHeaders(f, etable.Tab)
	for r := 0; r < dt.Rows; r++ {
		dt.WriteCSVRow(f, r, etable.Tab)
	}
	return nil
}

// MarkerFileName is the sidecar marker path of a data file.
func MarkerFileName(dataFile string) string {
	return strings.TrimSuffix(dataFile, filepath.Ext(dataFile)) + ".mrk"
}
