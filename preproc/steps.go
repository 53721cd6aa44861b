// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"math"
	"sort"

	"github.com/ccnlab/esi/geom"
	"github.com/emer/etable/minmax"
	"github.com/goki/mat32"
)

// FilterSpatial applies the topology-based spatial filter over the
// electrode graph to every map of the block.
func (m *Maps) FilterSpatial(ft geom.SpatialFilterType, electrodes []mat32.Vec3) {
	if ft == geom.SpatialFilterNone || len(electrodes) != m.NumCh() {
		return
	}
	graph := geom.NewGraph(electrodes)
	for t := range m.Vals {
		m.Vals[t] = graph.Filter(ft, m.Vals[t])
	}
}

// MergeComplex merges the real and imaginary blocks of one frequency band
// into a single magnitude block: s = sqrt(re² + im²), channel-wise. The
// timeline is disrupted, so the sampling frequency is zeroed.
func MergeComplex(re, im *Maps) *Maps {
	out := re.Clone()
	for t := range out.Vals {
		for ci := range out.Vals[t] {
			r := float64(re.Vals[t][ci])
			i := float64(im.Vals[t][ci])
			out.Vals[t][ci] = float32(math.Sqrt(r*r + i*i))
		}
	}
	out.SamplingFreq = 0
	out.Kind = KindPositive
	return out
}

// ComputeGfpNormalization returns the single multiplicative factor that
// scales the background GFP level to 1, estimated as the mode of the GFP
// distribution on a sub-sampled block.
func (m *Maps) ComputeGfpNormalization() float64 {
	gfp := m.GFP()
	if len(gfp) == 0 {
		return 1
	}
	sorted := append([]float64(nil), gfp...)
	sort.Float64s(sorted)
	// histogram max mode over the bulk of the distribution
	rng := minmax.F64{Min: sorted[0], Max: sorted[(len(sorted)-1)*95/100]}
	if rng.Range() <= 0 {
		// degenerate flat distribution
		if rng.Min > 0 {
			return 1 / rng.Min
		}
		return 1
	}
	const bins = 100
	var counts [bins]int
	for _, v := range gfp {
		b := int((v - rng.Min) / rng.Range() * (bins - 1))
		if b >= 0 && b < bins {
			counts[b]++
		}
	}
	best := 0
	for b, c := range counts {
		if c > counts[best] {
			best = b
		}
	}
	mode := rng.Min + (float64(best)+0.5)/(bins-1)*rng.Range()
	if mode <= 0 {
		return 1
	}
	return 1 / mode
}

// ApplyGfpNormalization scales all values by the factor.
func (m *Maps) ApplyGfpNormalization(factor float64) {
	f := float32(factor)
	for t := range m.Vals {
		for ci := range m.Vals[t] {
			m.Vals[t][ci] *= f
		}
	}
}

// ToRank replaces each scalar by its rank within its map, accounting for
// nulls (null stays null) and counting identical values as one shared rank.
// Ranks are normalized to (0..1]. Vectorial data ranks the norms and
// rescales the components.
func (m *Maps) ToRank() {
	vectorial := m.Kind == KindVector
	for t := range m.Vals {
		row := m.Vals[t]
		var vals []float64
		var idx []int
		if vectorial {
			for ci := 0; ci < len(row)/3; ci++ {
				x, y, z := float64(row[3*ci]), float64(row[3*ci+1]), float64(row[3*ci+2])
				n := math.Sqrt(x*x + y*y + z*z)
				if n != 0 {
					vals = append(vals, n)
					idx = append(idx, ci)
				}
			}
		} else {
			for ci, v := range row {
				if v != 0 {
					vals = append(vals, float64(v))
					idx = append(idx, ci)
				}
			}
		}
		if len(vals) == 0 {
			continue
		}
		order := make([]int, len(vals))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })

		ranks := make([]float64, len(vals))
		for i := 0; i < len(order); {
			j := i
			for j < len(order) && vals[order[j]] == vals[order[i]] {
				j++
			}
			// identical values share their averaged rank
			shared := float64(i+j+1) / 2
			for k := i; k < j; k++ {
				ranks[order[k]] = shared
			}
			i = j
		}
		scale := 1 / float64(len(vals))
		for i, ci := range idx {
			r := float32(ranks[i] * scale)
			if vectorial {
				n := vals[i]
				f := float64(r) / n
				row[3*ci] = float32(float64(row[3*ci]) * f)
				row[3*ci+1] = float32(float64(row[3*ci+1]) * f)
				row[3*ci+2] = float32(float64(row[3*ci+2]) * f)
			} else {
				row[ci] = r
			}
		}
	}
}

// Threshold clamps values with magnitude below t to 0. Vectorial data
// thresholds on the norm.
func (m *Maps) Threshold(t float64) {
	th := float32(math.Abs(t))
	if m.Kind == KindVector {
		for ti := range m.Vals {
			row := m.Vals[ti]
			for ci := 0; ci < len(row)/3; ci++ {
				x, y, z := float64(row[3*ci]), float64(row[3*ci+1]), float64(row[3*ci+2])
				if math.Sqrt(x*x+y*y+z*z) < float64(th) {
					row[3*ci], row[3*ci+1], row[3*ci+2] = 0, 0, 0
				}
			}
		}
		return
	}
	for ti := range m.Vals {
		for ci, v := range m.Vals[ti] {
			if v < th && v > -th {
				m.Vals[ti][ci] = 0
			}
		}
	}
}
