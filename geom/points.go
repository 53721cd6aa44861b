// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package geom provides the point-set and head-geometry operations used by
// the lead field pipeline: median spacing, spherization model fitting,
// inverse-center optimization and the guillotine plane.
package geom

import (
	"math"
	"math/rand"
	"sort"

	"github.com/goki/mat32"
	"gonum.org/v1/gonum/stat"
)

// Points is an ordered set of 3D points with optional parallel names.
type Points struct {
	Pos   []mat32.Vec3 `desc:"point coordinates"`
	Names []string     `desc:"optional per-point names, same length as Pos or empty"`
}

// NewPoints returns a set over the given positions, without names.
func NewPoints(pos []mat32.Vec3) *Points {
	return &Points{Pos: pos}
}

// Len returns the number of points.
func (ps *Points) Len() int { return len(ps.Pos) }

// Clone returns a deep copy.
func (ps *Points) Clone() *Points {
	np := &Points{Pos: make([]mat32.Vec3, len(ps.Pos))}
	copy(np.Pos, ps.Pos)
	if ps.Names != nil {
		np.Names = make([]string, len(ps.Names))
		copy(np.Names, ps.Names)
	}
	return np
}

// Translate shifts every point by delta.
func (ps *Points) Translate(delta mat32.Vec3) {
	for i := range ps.Pos {
		ps.Pos[i] = ps.Pos[i].Add(delta)
	}
}

// Bounds returns the min and max corner of the bounding box.
func (ps *Points) Bounds() (min, max mat32.Vec3) {
	if len(ps.Pos) == 0 {
		return
	}
	min, max = ps.Pos[0], ps.Pos[0]
	for _, p := range ps.Pos[1:] {
		min = min.Min(p)
		max = max.Max(p)
	}
	return
}

// MedianSpacing returns the median nearest-neighbor distance, which is the
// regular grid step for grid-aligned solution points.
func (ps *Points) MedianSpacing() float64 {
	n := len(ps.Pos)
	if n < 2 {
		return 0
	}
	dists := make([]float64, n)
	for i, p := range ps.Pos {
		best := float32(math.MaxFloat32)
		for j, q := range ps.Pos {
			if i == j {
				continue
			}
			d := p.DistTo(q)
			if d < best {
				best = d
			}
		}
		dists[i] = float64(best)
	}
	sort.Float64s(dists)
	return stat.Quantile(0.5, stat.Empirical, dists, nil)
}

// Downsample keeps at most n points, picked at a regular stride to preserve
// the spatial distribution of the input ordering.
func (ps *Points) Downsample(n int) {
	if n <= 0 || len(ps.Pos) <= n {
		return
	}
	step := float64(len(ps.Pos)) / float64(n)
	out := make([]mat32.Vec3, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ps.Pos[int(float64(i)*step)])
	}
	ps.Pos = out
	ps.Names = nil
}

// Jitter returns a copy of p offset by a random 3D spherical displacement of
// the given radius, drawn from rng.
func Jitter(p mat32.Vec3, radius float32, rng *rand.Rand) mat32.Vec3 {
	for {
		d := mat32.Vec3{
			X: float32(2*rng.Float64() - 1),
			Y: float32(2*rng.Float64() - 1),
			Z: float32(2*rng.Float64() - 1),
		}
		l := d.Length()
		if l > 0 && l <= 1 {
			return p.Add(d.MulScalar(radius / l)) // uniform direction, fixed radius
		}
	}
}
