// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"math"
	"testing"

	"github.com/ccnlab/esi/volume"
	"github.com/goki/mat32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedianSpacingUnitGrid(t *testing.T) {
	var ps Points
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			for z := 0; z < 3; z++ {
				ps.Pos = append(ps.Pos, mat32.Vec3{X: float32(x), Y: float32(y), Z: float32(z)})
			}
		}
	}
	assert.InDelta(t, 1.0, ps.MedianSpacing(), 1e-6)
}

func TestBoundsAndTranslate(t *testing.T) {
	ps := Points{Pos: []mat32.Vec3{{X: -1, Y: 0, Z: 2}, {X: 3, Y: -2, Z: 1}}}
	min, max := ps.Bounds()
	assert.Equal(t, float32(-1), min.X)
	assert.Equal(t, float32(-2), min.Y)
	assert.Equal(t, float32(3), max.X)
	ps.Translate(mat32.Vec3{X: 1, Y: 2, Z: 0})
	assert.Equal(t, float32(0), ps.Pos[0].X)
	assert.Equal(t, float32(0), ps.Pos[1].Y)
}

// ellipsoidCloud samples the surface of an origin-centered ellipsoid.
func ellipsoidCloud(a, b, c float64, n int) *Points {
	ps := &Points{}
	for i := 0; i < n; i++ {
		theta := float64(i) / float64(n) * math.Pi / 2 // top half
		for j := 0; j < n; j++ {
			phi := float64(j) / float64(n) * 2 * math.Pi
			ps.Pos = append(ps.Pos, mat32.Vec3{
				X: float32(a * math.Sin(theta) * math.Cos(phi)),
				Y: float32(b * math.Sin(theta) * math.Sin(phi)),
				Z: float32(c * math.Cos(theta)),
			})
		}
	}
	return ps
}

func TestFitSphereModel(t *testing.T) {
	top := ellipsoidCloud(80, 100, 90, 24)
	sm, err := FitSphereModel(top)
	require.NoError(t, err)
	assert.InDelta(t, 80, float64(sm.Radii.X), 1.0)
	assert.InDelta(t, 100, float64(sm.Radii.Y), 1.0)
	assert.InDelta(t, 90, float64(sm.Radii.Z), 1.0)

	// a surface point maps to its own norm
	p := mat32.Vec3{X: 80, Y: 0, Z: 0}
	assert.InDelta(t, 80, float64(sm.ToModel(p).Length()), 1e-2)
	// a half-depth point still maps onto the surface radius
	half := mat32.Vec3{X: 40, Y: 0, Z: 0}
	assert.InDelta(t, 80, float64(sm.ToModel(half).Length()), 1e-2)
}

func TestFitSphereModelDegenerate(t *testing.T) {
	ps := &Points{}
	for i := 0; i < 20; i++ {
		ps.Pos = append(ps.Pos, mat32.Vec3{X: float32(i)}) // collinear
	}
	_, err := FitSphereModel(ps)
	require.Error(t, err)
}

func TestOptimalInverseTranslationCentersSets(t *testing.T) {
	sps := &Points{Pos: []mat32.Vec3{{X: 9, Y: 9, Z: 9}, {X: 11, Y: 11, Z: 11}}}
	shift := OptimalInverseTranslation(nil, sps, nil)
	// translating by the shift centers the set on the origin
	sps.Translate(shift)
	min, max := sps.Bounds()
	center := min.Add(max).MulScalar(0.5)
	assert.InDelta(t, 0, float64(center.Length()), 1e-5)
}

func TestGuillotinePlane(t *testing.T) {
	v := volume.New(40, 40, 40)
	// spherical head on top of nothing
	for x := 0; x < 40; x++ {
		for y := 0; y < 40; y++ {
			for z := 0; z < 40; z++ {
				dx, dy, dz := float64(x-20), float64(y-20), float64(z-25)
				if dx*dx+dy*dy+dz*dz <= 100 {
					v.Set(x, y, z, 1)
				}
			}
		}
	}
	v.Bg = 0
	m, ok := GuillotinePlane(v)
	require.True(t, ok)

	ps := &Points{Pos: []mat32.Vec3{
		{X: 0, Y: 0, Z: 5},   // above the cut (z=25 in volume coords)
		{X: 0, Y: 0, Z: -15}, // below the head
	}}
	center := mat32.Vec3{X: 20, Y: 20, Z: 20}
	KeepTopHeadPoints(ps, center, m)
	require.Equal(t, 1, ps.Len())
	assert.Equal(t, float32(5), ps.Pos[0].Z)
}

func TestGuillotinePlaneEmpty(t *testing.T) {
	v := volume.New(10, 10, 10)
	v.Bg = 0
	_, ok := GuillotinePlane(v)
	assert.False(t, ok)
}

func TestSpatialFilterOutlier(t *testing.T) {
	// flat ring of electrodes with one spike
	var pts []mat32.Vec3
	for i := 0; i < 12; i++ {
		a := float64(i) / 12 * 2 * math.Pi
		pts = append(pts, mat32.Vec3{X: float32(math.Cos(a)), Y: float32(math.Sin(a))})
	}
	g := NewGraph(pts)
	vals := make([]float32, 12)
	for i := range vals {
		vals[i] = 10
	}
	vals[3] = 100
	out := g.Filter(SpatialFilterOutlier, vals)
	assert.InDelta(t, 10, float64(out[3]), 1e-5)
	assert.InDelta(t, 10, float64(out[0]), 1e-5)
}

func TestSpatialFilterInterseptile(t *testing.T) {
	var pts []mat32.Vec3
	for i := 0; i < 12; i++ {
		a := float64(i) / 12 * 2 * math.Pi
		pts = append(pts, mat32.Vec3{X: float32(math.Cos(a)), Y: float32(math.Sin(a))})
	}
	g := NewGraph(pts)
	vals := make([]float32, 12)
	for i := range vals {
		vals[i] = float32(i)
	}
	out := g.Filter(SpatialFilterInterseptileWeightedMean, vals)
	// smoothing pulls the extremes toward their neighborhoods
	assert.Less(t, out[11], vals[11])
	assert.Greater(t, out[0], vals[0])
}
