// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package volume

import (
	"testing"

	"github.com/goki/mat32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ball(n int, cx, cy, cz, r float32) *Vol {
	v := New(n, n, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				dx := float32(x) - cx
				dy := float32(y) - cy
				dz := float32(z) - cz
				if dx*dx+dy*dy+dz*dz <= r*r {
					v.Set(x, y, z, 1)
				}
			}
		}
	}
	return v
}

func TestBinarize(t *testing.T) {
	v := New(2, 2, 2)
	v.Set(0, 0, 0, 0.3)
	v.Set(1, 1, 1, 0.9)
	v.Binarize(0.5, 1)
	assert.Equal(t, float32(0), v.At(0, 0, 0))
	assert.Equal(t, float32(1), v.At(1, 1, 1))
}

func TestSampleIntegerCoordsExact(t *testing.T) {
	v := New(8, 8, 8)
	v.Set(3, 4, 5, 7)
	v.Set(4, 4, 5, 2)
	// the Catmull-Rom spline interpolates through the data points
	assert.InDelta(t, 7, v.Sample(3, 4, 5, CubicHermite), 1e-5)
	assert.InDelta(t, 2, v.Sample(4, 4, 5, CubicHermite), 1e-5)
	assert.InDelta(t, 7, v.Sample(3, 4, 5, Linear), 1e-6)
	assert.Equal(t, float32(7), v.Sample(3.2, 4.1, 4.9, Nearest))
}

func TestClampOvershoot(t *testing.T) {
	v := New(8, 1, 1)
	for x := 0; x < 8; x++ {
		if x >= 4 {
			v.Set(x, 0, 0, 10)
		}
	}
	v.ClampOvershoot = true
	s := v.Sample(3.5, 0, 0, CubicHermite)
	assert.GreaterOrEqual(t, s, float32(0))
	assert.LessOrEqual(t, s, float32(10))
}

func TestMorphologyErrors(t *testing.T) {
	v := New(4, 4, 4)
	require.Error(t, v.Morphology(Dilate, 0, 0))
	empty := &Vol{}
	require.Error(t, empty.Morphology(Dilate, 3, 0))
}

func TestDilateErode(t *testing.T) {
	v := New(9, 9, 9)
	v.Set(4, 4, 4, 1)
	require.NoError(t, v.Morphology(Dilate, 3, 0))
	assert.Equal(t, float32(1), v.At(5, 4, 4))
	assert.Equal(t, float32(1), v.At(4, 3, 4))
	require.NoError(t, v.Morphology(Erode, 3, 0))
	assert.Equal(t, float32(1), v.At(4, 4, 4))
	assert.Equal(t, float32(0), v.At(5, 4, 4))
}

func TestKeepBiggestRegion(t *testing.T) {
	v := New(10, 10, 10)
	// big blob
	for x := 1; x < 5; x++ {
		for y := 1; y < 5; y++ {
			v.Set(x, y, 2, 1)
		}
	}
	// small separate blob
	v.Set(8, 8, 8, 1)
	v.KeepBiggestRegion()
	assert.Equal(t, float32(1), v.At(2, 2, 2))
	assert.Equal(t, float32(0), v.At(8, 8, 8))
}

func TestResurface(t *testing.T) {
	v := ball(41, 20, 20, 20, 10)
	v.Bg = 0
	center := mat32.Vec3{X: 20, Y: 20, Z: 20}
	p := mat32.Vec3{X: 15, Y: 0, Z: 0} // relative to center, inside
	sp, ok := v.Resurface(p, center, 0)
	require.True(t, ok)
	assert.InDelta(t, 10, sp.Length(), 1.0)
	// direction preserved
	assert.InDelta(t, 1, float64(sp.Normal().X), 1e-3)
}

func TestSkullStripDeterministic(t *testing.T) {
	v := ball(31, 15, 15, 15, 9)
	v.Bg = 0.5
	a := v.SkullStrip(Strip1B, 1, false)
	b := v.SkullStrip(Strip1B, 1, false)
	assert.Equal(t, a.Data.Values, b.Data.Values)
	// still centered on the original blob
	assert.Equal(t, float32(1), a.At(15, 15, 15))
}
