// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tissues

import (
	"sort"

	"github.com/ccnlab/esi/geom"
	"github.com/goki/mat32"
	"gonum.org/v1/gonum/stat"
)

// filterEstimates spatially filters each estimate map in place and returns
// one rescaling factor per axis. Filtering has a tendency to move the points
// inward; the ratio of the per-axis bounding maxes before / after restores
// the original 3D bounding box when applied back.
func filterEstimates(radius [][]float32, ft geom.SpatialFilterType,
	graph *geom.Graph, sphel []mat32.Vec3) mat32.Vec3 {

	if ft == geom.SpatialFilterNone {
		return mat32.Vec3{X: 1, Y: 1, Z: 1}
	}
	numEst := len(radius)
	numEl := len(sphel)

	maxes := func() []mat32.Vec3 {
		ms := make([]mat32.Vec3, numEst)
		for ri := 0; ri < numEst; ri++ {
			for ei := 0; ei < numEl; ei++ {
				v := sphel[ei].MulScalar(radius[ri][ei])
				ms[ri] = ms[ri].Max(v)
			}
		}
		return ms
	}

	oldMaxes := maxes()
	for ri := 0; ri < numEst; ri++ {
		radius[ri] = graph.Filter(ft, radius[ri])
	}
	newMaxes := maxes()

	ratios := [3][]float64{}
	for ri := 0; ri < numEst; ri++ {
		if newMaxes[ri].X > 0 {
			ratios[0] = append(ratios[0], float64(oldMaxes[ri].X/newMaxes[ri].X))
		}
		if newMaxes[ri].Y > 0 {
			ratios[1] = append(ratios[1], float64(oldMaxes[ri].Y/newMaxes[ri].Y))
		}
		if newMaxes[ri].Z > 0 {
			ratios[2] = append(ratios[2], float64(oldMaxes[ri].Z/newMaxes[ri].Z))
		}
	}
	med := func(vals []float64) float32 {
		if len(vals) == 0 {
			return 1
		}
		sort.Float64s(vals)
		return float32(stat.Quantile(0.5, stat.Empirical, vals, nil))
	}
	return mat32.Vec3{X: med(ratios[0]), Y: med(ratios[1]), Z: med(ratios[2])}
}

// FilterRadiiLimit spatially filters one (tissue, limit) slice of a radii
// array in place, returning the single global rescaling factor.
func FilterRadiiLimit(r *Radii, ti Index, li Limit, ft geom.SpatialFilterType,
	graph *geom.Graph) float64 {

	if ft == geom.SpatialFilterNone {
		return 1
	}
	vals := make([]float32, r.NumE)
	for ei := 0; ei < r.NumE; ei++ {
		vals[ei] = r.At(ei, ti, li)
	}
	filtered := graph.Filter(ft, vals)

	var ratios []float64
	for ei := 0; ei < r.NumE; ei++ {
		if filtered[ei] != 0 && vals[ei] != 0 {
			ratios = append(ratios, float64(vals[ei]/filtered[ei]))
		}
		r.Set(ei, ti, li, filtered[ei])
	}
	if len(ratios) == 0 {
		return 1
	}
	sort.Float64s(ratios)
	return stat.Quantile(0.5, stat.Empirical, ratios, nil)
}
