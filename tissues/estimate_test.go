// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tissues

import (
	"testing"

	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/volume"
	"github.com/goki/mat32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	headN      = 81
	headC      = 40
	brainR     = 25.0
	csfR       = 27.0
	skullR     = 31.0
	scalpR     = 35.0
)

// syntheticT1 builds a spherical head with bright scalp and brain around a
// dark skull shell.
func syntheticT1() (head, skullLimit, brainLimit *volume.Vol) {
	head = volume.New(headN, headN, headN)
	skullLimit = volume.New(headN, headN, headN)
	brainLimit = volume.New(headN, headN, headN)
	for x := 0; x < headN; x++ {
		for y := 0; y < headN; y++ {
			for z := 0; z < headN; z++ {
				dx := float64(x - headC)
				dy := float64(y - headC)
				dz := float64(z - headC)
				r := dx*dx + dy*dy + dz*dz
				switch {
				case r <= brainR*brainR:
					head.Set(x, y, z, 100)
				case r <= csfR*csfR:
					head.Set(x, y, z, 40)
				case r <= skullR*skullR:
					head.Set(x, y, z, 15)
				case r <= scalpR*scalpR:
					head.Set(x, y, z, 90)
				}
				if r <= brainR*brainR {
					brainLimit.Set(x, y, z, 1)
				}
				if r <= (brainR+4)*(brainR+4) {
					skullLimit.Set(x, y, z, 1)
				}
			}
		}
	}
	head.Bg = 5
	skullLimit.Bg = 0
	brainLimit.Bg = 0
	return
}

func headElectrodes(n int) []mat32.Vec3 {
	els := make([]mat32.Vec3, n)
	for i := range els {
		a := float64(i) / float64(n)
		els[i] = mat32.Vec3{
			X: float32(scalpR * 0.6 * (a - 0.5)),
			Y: float32(scalpR * 0.3 * a),
			Z: float32(scalpR * 0.8),
		}.Normal().MulScalar(scalpR)
	}
	return els
}

func TestEstimateSkullRadiiAtSyntheticHead(t *testing.T) {
	head, skullLimit, brainLimit := syntheticT1()
	center := mat32.Vec3{X: headC, Y: headC, Z: headC}
	p := mat32.Vec3{Z: scalpR}

	innerCSF, innerSkull, outerSkull, _ := EstimateSkullRadiiAt(
		p, head, skullLimit, brainLimit, head.Bg, skullLimit.Bg, center)

	assert.Greater(t, innerCSF, float32(brainR-2))
	assert.Less(t, innerCSF, float32(csfR+3))
	assert.Greater(t, innerSkull, innerCSF)
	assert.Greater(t, outerSkull, innerSkull)
	assert.Less(t, outerSkull, float32(scalpR))
	// the skull valley sits in the dark shell
	assert.Greater(t, innerSkull, float32(20))
	assert.Less(t, innerSkull, float32(33))
}

func TestEstimateRadiiT1Invariants(t *testing.T) {
	head, skullLimit, brainLimit := syntheticT1()
	center := mat32.Vec3{X: headC, Y: headC, Z: headC}
	els := headElectrodes(6)

	cf := &T1Config{}
	cf.Defaults()
	cf.NumCliques = 3 // keep the test fast
	radii, err := EstimateRadiiT1(cf, els, head, skullLimit, brainLimit, center,
		mat32.Vec3{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)

	for el := range els {
		assert.Equal(t, float32(1), radii.At(el, Scalp, OuterRel))
		assert.LessOrEqual(t, radii.At(el, CSF, InnerRel), radii.At(el, Skull, InnerRel))
		assert.LessOrEqual(t, radii.At(el, Skull, InnerRel), radii.At(el, Skull, OuterRel))
		assert.LessOrEqual(t, radii.At(el, Skull, OuterRel), float32(1))
		for _, ti := range []Index{CSF, Skull, SkullSpongy, Scalp} {
			assert.GreaterOrEqual(t, radii.At(el, ti, ThickAbs), float32(0), "tissue %v", ti)
		}
	}
}

// syntheticLabels builds the same head as a labelled tissues volume.
func syntheticLabels() *volume.Vol {
	tiss := volume.New(headN, headN, headN)
	for x := 0; x < headN; x++ {
		for y := 0; y < headN; y++ {
			for z := 0; z < headN; z++ {
				dx := float64(x - headC)
				dy := float64(y - headC)
				dz := float64(z - headC)
				r := dx*dx + dy*dy + dz*dz
				switch {
				case r <= brainR*brainR:
					tiss.Set(x, y, z, float32(Brain))
				case r <= csfR*csfR:
					tiss.Set(x, y, z, float32(CSF))
				case r <= skullR*skullR:
					tiss.Set(x, y, z, float32(Skull))
				case r <= scalpR*scalpR:
					tiss.Set(x, y, z, float32(Scalp))
				}
			}
		}
	}
	tiss.Bg = 0
	return tiss
}

func TestScanTissuesMaxInterval(t *testing.T) {
	tiss := syntheticLabels()
	center := mat32.Vec3{X: headC, Y: headC, Z: headC}
	p := mat32.Vec3{Z: scalpR}

	rmin, rmax, ok := ScanTissuesMaxInterval(tiss, center, mat32.Vec3{}, p,
		1, float64(p.Length()), SkullMin, SkullMax)
	require.True(t, ok)
	assert.InDelta(t, csfR, float64(rmin), 1.5)
	assert.InDelta(t, skullR, float64(rmax), 1.5)
}

func TestScanTissuesMaxIntervalMissing(t *testing.T) {
	tiss := volume.New(20, 20, 20) // empty
	center := mat32.Vec3{X: 10, Y: 10, Z: 10}
	_, _, ok := ScanTissuesMaxInterval(tiss, center, mat32.Vec3{}, mat32.Vec3{Z: 8},
		1, 8, SkullMin, SkullMax)
	assert.False(t, ok)
}

func TestEstimateRadiiSegmentation(t *testing.T) {
	tiss := syntheticLabels()
	center := mat32.Vec3{X: headC, Y: headC, Z: headC}
	els := headElectrodes(4)

	cf := &SegConfig{}
	radii, err := EstimateRadiiSegmentation(cf, els, tiss, center, center, center,
		mat32.Vec3{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)

	for el := range els {
		assert.InDelta(t, csfR, float64(radii.At(el, Skull, InnerAbs)), 2.0, "el %d", el)
		assert.InDelta(t, skullR, float64(radii.At(el, Skull, OuterAbs)), 2.0, "el %d", el)
		assert.LessOrEqual(t, radii.At(el, CSF, InnerRel), radii.At(el, CSF, OuterRel))
		assert.Equal(t, float32(1), radii.At(el, Scalp, OuterRel))
	}
}

func TestFilterEstimatesIdentityWhenNone(t *testing.T) {
	vals := [][]float32{{1, 2, 3}}
	ratio := filterEstimates(vals, geom.SpatialFilterNone, nil, nil)
	assert.Equal(t, float32(1), ratio.X)
	assert.Equal(t, []float32{1, 2, 3}, vals[0])
}
