// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tissues

import (
	"math"
	"testing"

	"github.com/goki/mat32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeToSkullThicknessMonotoneAdult(t *testing.T) {
	// the adult branch strictly increases from 20 to 80 years
	prev := AgeToSkullThickness(20)
	for age := 30.0; age <= 80; age += 10 {
		cur := AgeToSkullThickness(age)
		assert.Greater(t, cur, prev, "age %g", age)
		prev = cur
	}
}

func TestAgeToSkullThicknessContinuousAtJoint(t *testing.T) {
	below := AgeToSkullThickness(20)
	above := AgeToSkullThickness(20.0001)
	assert.InDelta(t, below, above, 1e-3)
}

func TestAgeToSkullThicknessInfant(t *testing.T) {
	// newborn skull is much thinner than adult
	assert.Less(t, AgeToSkullThickness(0), 2.0)
	assert.Greater(t, AgeToSkullThickness(0), 0.0)
	assert.Greater(t, AgeToSkullThickness(40), 4.0)
}

func TestAgeToSkullConductivityDecreasing(t *testing.T) {
	prev := AgeToSkullConductivity(0)
	for age := 10.0; age <= 100; age += 10 {
		cur := AgeToSkullConductivity(age)
		assert.Less(t, cur, prev, "age %g", age)
		prev = cur
	}
	// clipping outside the range
	assert.Equal(t, AgeToSkullConductivity(0), AgeToSkullConductivity(-5))
	assert.Equal(t, AgeToSkullConductivity(100), AgeToSkullConductivity(150))
}

func TestSplitSkullConductivity(t *testing.T) {
	compact, spongy := SplitSkullConductivity(0.0116, SkullCompactToSpongyRatio, SkullSpongyPercentage)
	assert.InDelta(t, SkullCompactToSpongyRatio, spongy/compact, 1e-9)
	// series resistance of the split layers recovers the whole skull
	whole := 1 / ((1-SkullSpongyPercentage)/compact + SkullSpongyPercentage/spongy)
	assert.InDelta(t, 0.0116, whole, 1e-9)
}

func TestSkullThicknessToSpongy(t *testing.T) {
	// normal skull: spongy is the configured share
	spongy := SkullThicknessToSpongy(6, SkullSpongyPercentage, SkullCompactMinThickness, SkullCompactMaxThickness)
	assert.InDelta(t, 0.55*6, spongy, 1e-6)
	// very thin skull: compact clipping can consume everything
	thin := SkullThicknessToSpongy(1.5, SkullSpongyPercentage, SkullCompactMinThickness, SkullCompactMaxThickness)
	assert.GreaterOrEqual(t, thin, 0.0)
	// thick skull: compact clipped at max, spongy takes the rest
	thick := SkullThicknessToSpongy(20, SkullSpongyPercentage, SkullCompactMinThickness, SkullCompactMaxThickness)
	assert.InDelta(t, 20-2*SkullCompactMaxThickness, thick, 1e-6)
}

func TestWeightedConductivities(t *testing.T) {
	wb := WeightedBrainCond()
	assert.InDelta(t, 0.36, wb, 0.02)
	wbs := WeightedBrainScalpCond()
	assert.InDelta(t, 0.39, wbs, 0.02)
}

// testRadii builds a plausible radii array for numEl electrodes at radius
// 100, with the given skull interval.
func testRadii(numEl int, innerSkull, outerSkull float32) (*Radii, []mat32.Vec3) {
	r := NewRadii(numEl)
	pts := make([]mat32.Vec3, numEl)
	for el := 0; el < numEl; el++ {
		pts[el] = mat32.Vec3{Z: 100}
		r.Set(el, CSF, InnerAbs, innerSkull-5)
		r.Set(el, CSF, OuterAbs, innerSkull)
		r.Set(el, CSF, ThickAbs, 5)
		r.Set(el, Skull, InnerAbs, innerSkull)
		r.Set(el, Skull, OuterAbs, outerSkull)
		r.Set(el, Skull, ThickAbs, outerSkull-innerSkull)
		r.setSpongyFromSkull(el)
	}
	return r, pts
}

func TestAbsToRelInvariants(t *testing.T) {
	r, pts := testRadii(4, 85, 92)
	ok := r.AbsToRel(pts)
	require.True(t, ok)
	for el := 0; el < 4; el++ {
		assert.Equal(t, float32(1), r.At(el, Scalp, OuterRel))
		for ti := NoTissue + 1; ti < NumTissues; ti++ {
			inner := r.At(el, ti, InnerRel)
			outer := r.At(el, ti, OuterRel)
			assert.GreaterOrEqual(t, outer, inner, "tissue %v", ti)
			assert.LessOrEqual(t, outer, float32(1))
			assert.GreaterOrEqual(t, inner, float32(0))
		}
		// thickness identity on the estimated tissues
		for _, ti := range []Index{CSF, Skull, SkullSpongy, Scalp} {
			assert.InDelta(t, float64(r.At(el, ti, OuterAbs)-r.At(el, ti, InnerAbs)),
				float64(r.At(el, ti, ThickAbs)), 1e-4)
			assert.GreaterOrEqual(t, r.At(el, ti, ThickAbs), float32(0))
		}
		// layer stacking, outward
		assert.LessOrEqual(t, r.At(el, CSF, InnerRel), r.At(el, Skull, InnerRel))
		assert.LessOrEqual(t, r.At(el, Skull, InnerRel), r.At(el, SkullSpongy, InnerRel))
		assert.LessOrEqual(t, r.At(el, SkullSpongy, OuterRel), r.At(el, Skull, OuterRel))
		assert.LessOrEqual(t, r.At(el, Skull, OuterRel), float32(1))
	}
}

func TestAbsToRelNegativeThickness(t *testing.T) {
	r, pts := testRadii(2, 85, 92)
	r.Set(0, CSF, ThickAbs, -1)
	assert.False(t, r.AbsToRel(pts))
}

func TestAdjustSkullThicknessIdentity(t *testing.T) {
	r, pts := testRadii(4, 85, 92)
	// target equal to the observed median: rescale = 1 leaves radii unchanged
	before := append([]float32(nil), r.Vals.Values...)
	r.AdjustSkullThickness(pts, mat32.Vec3{X: 1, Y: 1, Z: 1}, 7)
	for i, v := range r.Vals.Values {
		assert.InDelta(t, float64(before[i]), float64(v), 1e-4)
	}
}

func TestAdjustSkullThicknessShrink(t *testing.T) {
	r, pts := testRadii(4, 85, 92) // observed thickness 7 voxels
	r.AdjustSkullThickness(pts, mat32.Vec3{X: 1, Y: 1, Z: 1}, 3.5)
	for el := 0; el < 4; el++ {
		assert.InDelta(t, 3.5, float64(r.At(el, Skull, ThickAbs)), 1e-3)
		// shrinking protects the outer skull
		assert.InDelta(t, 92, float64(r.At(el, Skull, OuterAbs)), 1e-4)
		// CSF follows the inner skull
		assert.InDelta(t, float64(r.At(el, Skull, InnerAbs)),
			float64(r.At(el, CSF, OuterAbs)), 1e-4)
	}
}

func TestAdjustSkullThicknessExpand(t *testing.T) {
	r, pts := testRadii(4, 85, 92)
	r.AdjustSkullThickness(pts, mat32.Vec3{X: 1, Y: 1, Z: 1}, 14)
	for el := 0; el < 4; el++ {
		assert.InDelta(t, 14, float64(r.At(el, Skull, ThickAbs)), 1e-3)
		// expanding moves only the outer surface
		assert.InDelta(t, 85, float64(r.At(el, Skull, InnerAbs)), 1e-4)
	}
}

func TestRelDiff(t *testing.T) {
	assert.InDelta(t, 0, relDiff(5, 5), 1e-12)
	assert.InDelta(t, 2, relDiff(0, 5), 1e-9/5)
	assert.InDelta(t, relDiff(3, 4), relDiff(4, 3), 1e-12)
}

func TestFastGaussian1DPreservesMean(t *testing.T) {
	line := make([]float64, 101)
	for i := range line {
		line[i] = 10 + 5*math.Sin(float64(i)/5)
	}
	var sum0 float64
	for _, v := range line {
		sum0 += v
	}
	fastGaussian1D(line, 5)
	var sum1 float64
	for _, v := range line {
		sum1 += v
	}
	// interior smoothing conserves mass up to the border handling
	assert.InDelta(t, sum0, sum1, sum0*0.02)
}
