// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leadfield

import (
	"context"
	"math"
	"testing"

	"github.com/ccnlab/esi/forward"
	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/tissues"
	"github.com/goki/mat32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// sphereSetup builds a unit-sphere head: numEl electrodes on the upper
// sphere, solution points inside, and per-electrode radii at the standard
// ratios.
func sphereSetup(numEl, numSP int) ([]mat32.Vec3, []mat32.Vec3, *geom.SphereModel, *tissues.Radii) {
	els := make([]mat32.Vec3, numEl)
	for i := range els {
		theta := float64(i) / float64(numEl) * math.Pi / 2
		phi := float64(i) * 2.399963 // golden angle spread
		els[i] = mat32.Vec3{
			X: float32(100 * math.Sin(theta) * math.Cos(phi)),
			Y: float32(100 * math.Sin(theta) * math.Sin(phi)),
			Z: float32(100 * math.Cos(theta)),
		}
	}
	sps := make([]mat32.Vec3, numSP)
	for i := range sps {
		r := 20 + 40*float64(i)/float64(numSP)
		theta := float64(i) / float64(numSP) * math.Pi
		sps[i] = mat32.Vec3{
			X: float32(r * math.Sin(theta)),
			Z: float32(r * math.Cos(theta)),
		}
	}
	model := &geom.SphereModel{Radii: mat32.Vec3{X: 100, Y: 100, Z: 100}}

	radii := tissues.NewRadii(numEl)
	for el := 0; el < numEl; el++ {
		radii.Set(el, tissues.CSF, tissues.InnerRel, 0.84)
		radii.Set(el, tissues.Skull, tissues.InnerRel, 0.87)
		radii.Set(el, tissues.Skull, tissues.OuterRel, 0.92)
		radii.Set(el, tissues.SkullSpongy, tissues.InnerRel, 0.88)
		radii.Set(el, tissues.SkullSpongy, tissues.OuterRel, 0.91)
		radii.Set(el, tissues.Scalp, tissues.OuterRel, 1)
	}
	return els, sps, model, radii
}

func TestComputeColumnCentering(t *testing.T) {
	els, sps, model, radii := sphereSetup(32, 60)
	spec, err := forward.NewSpec(forward.Exact3Shell)
	require.NoError(t, err)
	sigma := spec.LayerConductivities(0.0105)

	k, err := Compute(context.Background(), spec, els, sps, model, sigma, radii)
	require.NoError(t, err)

	rows, cols := k.Dims()
	assert.Equal(t, 32, rows)
	assert.Equal(t, 3*60, cols)
	for j := 0; j < cols; j++ {
		sum := 0.0
		maxAbs := 0.0
		for i := 0; i < rows; i++ {
			v := k.At(i, j)
			sum += v
			if a := math.Abs(v); a > maxAbs {
				maxAbs = a
			}
		}
		if maxAbs == 0 {
			continue
		}
		assert.LessOrEqual(t, math.Abs(sum), 1e-9*maxAbs+1e-12, "column %d", j)
	}
}

func TestComputeAryDeterministic(t *testing.T) {
	els, sps, model, radii := sphereSetup(8, 10)
	spec, err := forward.NewSpec(forward.Ary3ShellApprox)
	require.NoError(t, err)
	sigma := spec.LayerConductivities(0.0105)

	k1, err := Compute(context.Background(), spec, els, sps, model, sigma, radii)
	require.NoError(t, err)
	k2, err := Compute(context.Background(), spec, els, sps, model, sigma, radii)
	require.NoError(t, err)

	rows, cols := k1.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.Equal(t, k1.At(i, j), k2.At(i, j))
		}
	}
}

func TestComputeCancellation(t *testing.T) {
	els, sps, model, radii := sphereSetup(8, 10)
	spec, _ := forward.NewSpec(forward.Exact3Shell)
	sigma := spec.LayerConductivities(0.0105)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, spec, els, sps, model, sigma, radii)
	require.Error(t, err)
}

// grid3 builds a regular unit grid of n^3 points.
func grid3(n int) *geom.Points {
	ps := &geom.Points{}
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			for z := 0; z < n; z++ {
				ps.Pos = append(ps.Pos, mat32.Vec3{X: float32(x), Y: float32(y), Z: float32(z)})
			}
		}
	}
	return ps
}

func TestInterpolateIdentity(t *testing.T) {
	grid := grid3(3)
	numEl := 4
	numSP := grid.Len()
	k := mat.NewDense(numEl, 3*numSP, nil)
	for i := 0; i < numEl; i++ {
		for j := 0; j < 3*numSP; j++ {
			k.Set(i, j, float64(i*31+j)*0.01-1)
		}
	}
	rejected := NewRejected(numSP)
	out := Interpolate(k, grid, grid, rejected)
	assert.Equal(t, 0, rejected.Count())
	for i := 0; i < numEl; i++ {
		for j := 0; j < 3*numSP; j++ {
			assert.InDelta(t, k.At(i, j), out.At(i, j), 1e-12)
		}
	}
}

func TestInterpolateMidpointAndRejection(t *testing.T) {
	grid := grid3(2)
	numEl := 2
	numSP := grid.Len()
	k := mat.NewDense(numEl, 3*numSP, nil)
	for i := 0; i < numEl; i++ {
		for j := 0; j < 3*numSP; j++ {
			k.Set(i, j, 1) // constant field
		}
	}
	out := geom.NewPoints([]mat32.Vec3{
		{X: 0.5, Y: 0.5, Z: 0.5}, // inside the cell
		{X: 5, Y: 5, Z: 5},       // far outside
	})
	rejected := NewRejected(out.Len())
	ki := Interpolate(k, grid, out, rejected)
	assert.False(t, rejected[0])
	assert.True(t, rejected[1])
	// constant vectors interpolate to themselves
	assert.InDelta(t, 1, ki.At(0, 0), 1e-6)
	assert.InDelta(t, 1, ki.At(1, 2), 1e-6)
	// rejected column left zeroed
	assert.Equal(t, 0.0, ki.At(0, 3))
}

func TestCheckNullAndReject(t *testing.T) {
	numEl, numSP := 3, 12
	k := mat.NewDense(numEl, 3*numSP, nil)
	for i := 0; i < numEl; i++ {
		for j := 0; j < 3*numSP; j++ {
			k.Set(i, j, float64(j+1))
		}
	}
	// 10 null columns
	for sp := 0; sp < 10; sp++ {
		for i := 0; i < numEl; i++ {
			for c := 0; c < 3; c++ {
				k.Set(i, 3*sp+c, 0)
			}
		}
	}
	// one NaN column
	k.Set(1, 3*10, math.NaN())

	rejected := NewRejected(numSP)
	CheckNull(k, rejected)
	assert.Equal(t, 11, rejected.Count())

	kd := RejectPoints(k, rejected)
	rows, cols := kd.Dims()
	assert.Equal(t, numEl, rows)
	assert.Equal(t, 3*(numSP-11), cols)
	// the surviving block is the last solution point, row order preserved
	assert.Equal(t, float64(3*11+1), kd.At(0, 0))
	assert.Equal(t, float64(3*11+1), kd.At(2, 0))
}

func TestRejectionCompactionKeepsOrder(t *testing.T) {
	numEl, numSP := 2, 6
	k := mat.NewDense(numEl, 3*numSP, nil)
	for sp := 0; sp < numSP; sp++ {
		for c := 0; c < 3; c++ {
			k.Set(0, 3*sp+c, float64(sp))
			k.Set(1, 3*sp+c, float64(sp)+100)
		}
	}
	rejected := NewRejected(numSP)
	rejected[1] = true
	rejected[4] = true
	kd := RejectPoints(k, rejected)
	_, cols := kd.Dims()
	assert.Equal(t, 3*4, cols)
	wantSP := []float64{0, 2, 3, 5}
	for i, want := range wantSP {
		assert.Equal(t, want, kd.At(0, 3*i))
		assert.Equal(t, want+100, kd.At(1, 3*i))
	}
}

func TestInterp2VectorsNormPreserved(t *testing.T) {
	v1 := mat32.Vec3{X: 2}
	v2 := mat32.Vec3{Y: 2}
	mid := interp2Vectors(v1, v2, 0.5)
	// norms interpolate linearly, direction follows the arc
	assert.InDelta(t, 2, float64(mid.Length()), 1e-5)
	assert.InDelta(t, float64(mid.X), float64(mid.Y), 1e-5)

	// null vector cases
	z := interp2Vectors(mat32.Vec3{}, v2, 0.25)
	assert.InDelta(t, 0.5, float64(z.Length()), 1e-5)
}
