// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"math"
	"sort"

	"github.com/goki/mat32"
	"gonum.org/v1/gonum/stat"
)

// SpatialFilterType selects the topology-based filter applied to values
// defined over an electrode set.
type SpatialFilterType int

const (
	SpatialFilterNone SpatialFilterType = iota

	// SpatialFilterOutlier only replaces values deviating strongly from
	// their neighborhood -- no big change in shape.
	SpatialFilterOutlier

	// SpatialFilterInterseptileWeightedMean is the heavy smoothing filter:
	// a weighted mean of the neighborhood restricted to its interseptile
	// value range.
	SpatialFilterInterseptileWeightedMean
)

// Graph is the electrode neighborhood topology: for each point, the indices
// of its spatial neighbors.
type Graph struct {
	Neigh [][]int
}

// NewGraph builds the neighborhood graph from electrode positions: points
// within 1.5 median spacings are neighbors, with a floor of the 6 nearest to
// keep border electrodes connected.
func NewGraph(pts []mat32.Vec3) *Graph {
	n := len(pts)
	g := &Graph{Neigh: make([][]int, n)}
	ps := &Points{Pos: pts}
	radius := float32(1.5 * ps.MedianSpacing())
	type nd struct {
		i int
		d float32
	}
	for i, p := range pts {
		all := make([]nd, 0, n-1)
		for j, q := range pts {
			if i == j {
				continue
			}
			all = append(all, nd{j, p.DistTo(q)})
		}
		sort.Slice(all, func(a, b int) bool { return all[a].d < all[b].d })
		for k, e := range all {
			if e.d <= radius || k < 6 {
				g.Neigh[i] = append(g.Neigh[i], e.i)
			} else {
				break
			}
		}
	}
	return g
}

// Filter returns vals filtered over the graph with the given filter type.
// vals is not modified.
func (g *Graph) Filter(ft SpatialFilterType, vals []float32) []float32 {
	out := make([]float32, len(vals))
	copy(out, vals)
	if ft == SpatialFilterNone {
		return out
	}
	for i, neigh := range g.Neigh {
		if len(neigh) == 0 {
			continue
		}
		nv := make([]float64, 0, len(neigh)+1)
		for _, j := range neigh {
			nv = append(nv, float64(vals[j]))
		}
		sort.Float64s(nv)
		switch ft {
		case SpatialFilterOutlier:
			med := stat.Quantile(0.5, stat.Empirical, nv, nil)
			mad := 0.0
			devs := make([]float64, len(nv))
			for k, v := range nv {
				devs[k] = math.Abs(v - med)
			}
			sort.Float64s(devs)
			mad = stat.Quantile(0.5, stat.Empirical, devs, nil)
			dev := math.Abs(float64(vals[i]) - med)
			// a flat neighborhood has no spread: any deviation is an outlier
			if (mad > 0 && dev > 3*1.4826*mad) || (mad == 0 && dev > 0) {
				out[i] = float32(med)
			}
		case SpatialFilterInterseptileWeightedMean:
			lo := stat.Quantile(1.0/7.0, stat.Empirical, nv, nil)
			hi := stat.Quantile(6.0/7.0, stat.Empirical, nv, nil)
			// center value weighs double within the kept range
			sum := 0.0
			w := 0.0
			if c := float64(vals[i]); c >= lo && c <= hi {
				sum += 2 * c
				w += 2
			}
			for _, v := range nv {
				if v >= lo && v <= hi {
					sum += v
					w++
				}
			}
			if w > 0 {
				out[i] = float32(sum / w)
			}
		}
	}
	return out
}
