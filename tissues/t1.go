// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tissues

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/volume"
	"github.com/emer/empi/mpi"
	"github.com/goki/mat32"
)

// The radial line is resampled to a uniform length so the extrema analysis
// is independent of the actual MRI size.
const (
	normalizedRadius = 100
	maxNormRad       = normalizedRadius + 1

	// no need to scan more than 7 peaks/valleys
	maxExtrema = 7

	minBrainRelativeRadius      = 0.33
	maxInnerSkullRelativeRadius = 0.98
	minDeltaSkullRelativeRadius = 0.01
	maxOuterSkullRelativeRadius = 0.95 + minDeltaSkullRelativeRadius

	defaultInnerSkullRelativeRadius = 0.866
	defaultOuterSkullRelativeRadius = 0.940
)

// relDiff is the relative difference between two values, normalized by their
// mean magnitude.
func relDiff(a, b float64) float64 {
	den := (math.Abs(a) + math.Abs(b)) / 2
	if den == 0 {
		return 0
	}
	return math.Abs(a-b) / den
}

// fastGaussian1D smooths line in place with three box passes of half-width
// derived from diameter.
func fastGaussian1D(line []float64, diameter int) {
	w := diameter / 4
	if w < 1 {
		w = 1
	}
	tmp := make([]float64, len(line))
	for pass := 0; pass < 3; pass++ {
		copy(tmp, line)
		for i := range line {
			sum := 0.0
			n := 0
			for d := -w; d <= w; d++ {
				j := i + d
				if j < 0 || j >= len(tmp) {
					continue
				}
				sum += tmp[j]
				n++
			}
			line[i] = sum / float64(n)
		}
	}
}

// EstimateSkullRadiiAt estimates the inner CSF, inner skull and outer skull
// radii below one surface point p (relative to center, already projected on
// the head surface), by sampling the T1 intensity along the surface-to-center
// ray and analyzing its extrema. Returns ok=false when no usable valley was
// found, in which case default radii are substituted.
func EstimateSkullRadiiAt(p mat32.Vec3, full, skullLimit, brainLimit *volume.Vol,
	fullBg, brainBg float32, center mat32.Vec3) (innerCSF, innerSkull, outerSkull float32, ok bool) {

	radiusMax := float64(p.Length())
	if radiusMax == 0 {
		return 0, 0, 0, false
	}
	// scan direction, going inward
	dir := p.DivScalar(-normalizedRadius)

	// sample the intensity line from surface to center
	var radAvg [maxNormRad]float64
	q := p.Add(center)
	for r := 0; r < maxNormRad; r++ {
		radAvg[r] = float64(full.Sample(q.X, q.Y, q.Z, volume.CubicHermite))
		q = q.Add(dir)
	}

	// bandpass with mirrored margins: removes the bias field and enhances
	// the first bright-dark-grey transitions
	buf := make([]float64, 3*maxNormRad)
	for i := 0; i < maxNormRad; i++ {
		buf[maxNormRad+i] = radAvg[i]
		buf[maxNormRad-1-i] = radAvg[i]
		buf[3*maxNormRad-1-i] = radAvg[i]
	}
	fastGaussian1D(buf, 5)
	for i := 0; i < maxNormRad; i++ {
		radAvg[i] = buf[maxNormRad+i]
	}

	// convert the line into alternating peak / valley positions; valleys are
	// coded negative
	var extrema [maxNormRad]int
	numExtrema := 0
	currPos := 0
	for numExtrema < maxExtrema {
		found := false
		for currPos++; currPos < maxNormRad-1; currPos++ {
			if radAvg[currPos] > radAvg[currPos+1] && radAvg[currPos] > radAvg[currPos-1] {
				extrema[numExtrema] = currPos
				numExtrema++
				found = true
				break
			}
		}
		if !found || currPos >= maxNormRad-1 {
			break
		}
		found = false
		for currPos++; currPos < maxNormRad-1; currPos++ {
			if radAvg[currPos] < radAvg[currPos+1] && radAvg[currPos] < radAvg[currPos-1] {
				extrema[numExtrema] = -currPos
				numExtrema++
				found = true
				break
			}
		}
		if !found || currPos >= maxNormRad-1 {
			break
		}
	}
	exPos := func(i int) int { return abs(extrema[i]) }
	exVal := func(i int) float64 { return radAvg[abs(extrema[i])] }

	// deepest credible limit for the skull, from the dilated brain mask
	radiusBrain := radiusMax
	if sp, bok := skullLimit.Resurface(p, center, brainBg); bok {
		radiusBrain = float64(sp.Length())
	}
	// to normalized position: low index is the outer part
	brainPosN := normalizedRadius * (1 - math.Min(1, radiusBrain/radiusMax))

	// last valley before the brain surface
	valleyI := -1
	brainValley := -1
	minV := math.MaxFloat64
	for i := 0; i < numExtrema; i++ {
		if extrema[i] >= 0 {
			continue
		}
		pos := exPos(i)
		if float64(pos) >= brainPosN && valleyI != -1 {
			break
		}
		if v := radAvg[pos]; v < minV {
			minV = v
			valleyI = i
			brainValley = pos
		}
	}

	topSide := p.Z >= -10

	// if detection from the brain surface failed, take the lowest valley in
	// the allowed range
	if valleyI == -1 {
		minValley := math.MaxFloat64
		for i := 0; i < numExtrema; i++ {
			if extrema[i] >= 0 {
				continue
			}
			pos := exPos(i)
			lim := 0.60
			if topSide {
				lim = 0.33
			}
			if float64(pos) > normalizedRadius*lim {
				break
			}
			if radAvg[pos] < minValley {
				minValley = radAvg[pos]
				valleyI = i
			}
		}
	}

	// still nothing: settle for default values
	if valleyI == -1 {
		if sp, bok := brainLimit.Resurface(p, center, brainBg); bok {
			radiusBrain = float64(sp.Length())
		}
		innerCSF = float32(radiusBrain) + 0.5
		innerSkull = defaultInnerSkullRelativeRadius * float32(radiusMax)
		outerSkull = defaultOuterSkullRelativeRadius * float32(radiusMax)
		if innerSkull < innerCSF+MinCsfThickness {
			innerSkull = innerCSF + MinCsfThickness
		}
		if outerSkull < innerSkull+MinSkullThickness {
			outerSkull = innerSkull + MinSkullThickness
		}
		return innerCSF, innerSkull, outerSkull, false
	}

	// classify the selected valley from the configuration of its neighbours;
	// the relative-difference thresholds are data-tuned
	inner := -1.0
	outer := -1.0
	switch {
	// 1) simple isolated valley, nothing close
	case valleyI == 1 && numExtrema >= 2 &&
		exPos(valleyI+1)-exPos(valleyI) > 7*normalizedRadius/100 &&
		relDiff(exVal(valleyI+1), exVal(valleyI)) > 0.30:

		brainValley = exPos(valleyI)

	// 2) small bump very close on the left
	case valleyI > 2 &&
		exPos(valleyI)-exPos(valleyI-2) < 15*normalizedRadius/100 &&
		math.Abs(exVal(valleyI-2)-exVal(valleyI)) < 40:

		brainValley = exPos(valleyI - 1)
		inner = float64(exPos(valleyI))
		// inflate to be comparable to the isolated-valley case
		d := float64(exPos(valleyI-1) - exPos(valleyI-2))
		outer = float64(exPos(valleyI-2)) - d*0.50

	// 3) small bump very close on the right
	case valleyI < numExtrema-2 &&
		exPos(valleyI+2)-exPos(valleyI) < 15*normalizedRadius/100 &&
		math.Abs(exVal(valleyI+2)-exVal(valleyI)) < 40:

		brainValley = exPos(valleyI + 1)
		inner = float64(exPos(valleyI + 2))
		d := float64(exPos(valleyI+1) - exPos(valleyI))
		outer = float64(exPos(valleyI)) - d*0.50

	// 4) big valley further away
	case valleyI < numExtrema-1 &&
		relDiff(exVal(valleyI-1), exVal(valleyI)) > 0.15 &&
		relDiff(exVal(valleyI+1), exVal(valleyI)) > 0.15:

		brainValley = exPos(valleyI)

	// fallback
	default:
		if numExtrema >= 1 {
			brainValley = exPos(valleyI)
		} else {
			brainValley = normalizedRadius
		}
	}

	// too deep: switch to one outer valley
	if valleyI-2 >= 0 && float64(brainValley) > brainPosN {
		valleyI -= 2
		brainValley = exPos(valleyI)
		inner = -1
	}

	// scan left and right independently, stopping at the inflexion of the
	// curve: grow while the second difference keeps increasing
	if inner == -1 {
		thick := 2
		delta := radAvg[brainValley-thick] - radAvg[brainValley-thick+1]
		for {
			if brainValley-thick <= 0 {
				break
			}
			next := radAvg[brainValley-thick-1] - radAvg[brainValley-thick]
			if next <= delta*1.20 {
				break
			}
			delta = next
			thick++
		}
		outer = float64(brainValley - thick)

		thick = 2
		delta = radAvg[brainValley+thick] - radAvg[brainValley+thick-1]
		for {
			if brainValley+thick >= maxNormRad-1 {
				break
			}
			next := radAvg[brainValley+thick+1] - radAvg[brainValley+thick]
			if next <= delta*1.20 {
				break
			}
			delta = next
			thick++
		}
		inner = float64(brainValley + thick)
	}

	// closest point to the actual brain
	if sp, bok := brainLimit.Resurface(p, center, brainBg); bok {
		radiusBrain = float64(sp.Length())
	}

	// invert and normalize back to radius, then clip to reasonable limits
	innerR := (normalizedRadius - inner) / normalizedRadius
	outerR := (normalizedRadius - outer) / normalizedRadius

	innerCSF = float32(radiusBrain) + 0.5 // a little extra space from the brain
	innerSkull = float32(clip(innerR, minBrainRelativeRadius, maxInnerSkullRelativeRadius) * radiusMax)
	outerSkull = float32(clip(outerR, innerR+minDeltaSkullRelativeRadius, maxOuterSkullRelativeRadius) * radiusMax)

	if innerSkull < innerCSF+MinCsfThickness {
		innerSkull = innerCSF + MinCsfThickness
	}
	if outerSkull < innerSkull+MinSkullThickness {
		outerSkull = innerSkull + MinSkullThickness
	}
	return innerCSF, innerSkull, outerSkull, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// T1Config collects the options of the T1 radii estimation.
type T1Config struct {
	NumCliques   int                    `def:"101" desc:"number of resampling cliques -- clique 0 is the unperturbed input"`
	Smoothing    geom.SpatialFilterType `desc:"optional spatial filtering of the per-electrode maps"`
	AdjustRadius bool                   `desc:"rescale skull thicknesses to the age-expected target"`
	TargetSkull  float64                `desc:"expected mean skull thickness in mm, 0 to skip"`
	RndSeed      int64                  `def:"1" desc:"seed of the clique jitter generator"`
}

// Defaults sets the standard estimation options.
func (cf *T1Config) Defaults() {
	cf.NumCliques = 101
	cf.RndSeed = 1
}

// EstimateRadiiT1 estimates all tissue radii per electrode from a full head
// T1 volume, a skull search limit mask and a brain limit mask. points are the
// electrode positions already translated to the inverse center; center is the
// inverse center in volume coordinates. More cliques mean better precision:
// each clique jitters the electrodes on the head surface and the estimates
// are combined by mean.
func EstimateRadiiT1(cf *T1Config, points []mat32.Vec3,
	full, skullLimit, brainLimit *volume.Vol,
	center mat32.Vec3, voxelSize mat32.Vec3) (*Radii, error) {

	numEl := len(points)
	if numEl == 0 {
		return nil, fmt.Errorf("tissues: empty electrode set")
	}
	if cf.NumCliques < 1 {
		cf.NumCliques = 1
	}
	fullBg := full.Bg
	brainBg := skullLimit.Bg
	// bound the spline overshoot on the hard intensity edges of the head
	full.ClampOvershoot = true

	nx, ny, nz := full.Dims()
	// smaller radius is closer to anatomy, but more prone to artifacts
	cliqueSide := 5 * float32(nx+ny+nz) / 3 / 200
	rng := rand.New(rand.NewSource(cf.RndSeed))

	innerCSF := newMaps(cf.NumCliques, numEl)
	innerSkull := newMaps(cf.NumCliques, numEl)
	outerSkull := newMaps(cf.NumCliques, numEl)

	for ci := 0; ci < cf.NumCliques; ci++ {
		for ei := 0; ei < numEl; ei++ {
			p := points[ei]
			if ci > 0 {
				// jitter is 3D spherical, the reprojection turns it into a
				// distribution on the surface disc
				p = geom.Jitter(p, cliqueSide, rng)
			}
			if sp, ok := full.Resurface(p, center, fullBg); ok {
				p = sp
			}
			icsf, iskull, oskull, _ := EstimateSkullRadiiAt(p, full, skullLimit, brainLimit,
				fullBg, brainBg, center)
			innerCSF[ci][ei] = icsf
			innerSkull[ci][ei] = iskull
			outerSkull[ci][ei] = oskull
		}
	}

	// optional spatial smoothing, rescaled per axis so the 3D bounding box of
	// the estimates is preserved
	if cf.Smoothing != geom.SpatialFilterNone {
		graph := geom.NewGraph(points)
		sphel := make([]mat32.Vec3, numEl)
		for i, p := range points {
			sphel[i] = p.Normal()
		}
		csfRatio := filterEstimates(innerCSF, cf.Smoothing, graph, sphel)
		innerRatio := filterEstimates(innerSkull, cf.Smoothing, graph, sphel)
		outerRatio := filterEstimates(outerSkull, cf.Smoothing, graph, sphel)
		ratio := csfRatio.Add(innerRatio).Add(outerRatio).DivScalar(3)
		for ci := range innerCSF {
			for ei := 0; ei < numEl; ei++ {
				innerCSF[ci][ei] = rescaled(sphel[ei], innerCSF[ci][ei], ratio)
				innerSkull[ci][ei] = rescaled(sphel[ei], innerSkull[ci][ei], ratio)
				outerSkull[ci][ei] = rescaled(sphel[ei], outerSkull[ci][ei], ratio)
			}
		}
	}

	// merge all estimates by mean
	statInnerCSF := meanMaps(innerCSF)
	statInnerSkull := meanMaps(innerSkull)
	statOuterSkull := meanMaps(outerSkull)

	radii := NewRadii(numEl)
	for ei := 0; ei < numEl; ei++ {
		// CSF first
		radii.Set(ei, CSF, InnerAbs, statInnerCSF[ei])
		radii.Set(ei, CSF, OuterAbs, statInnerSkull[ei])
		radii.Set(ei, CSF, ThickAbs, radii.At(ei, CSF, OuterAbs)-radii.At(ei, CSF, InnerAbs))
		if radii.At(ei, CSF, ThickAbs) < MinCsfThickness {
			radii.Set(ei, CSF, ThickAbs, MinCsfThickness)
			radii.Set(ei, CSF, InnerAbs, radii.At(ei, CSF, OuterAbs)-MinCsfThickness)
		}
		// skull above the CSF
		radii.Set(ei, Skull, InnerAbs, radii.At(ei, CSF, InnerAbs)+radii.At(ei, CSF, ThickAbs))
		radii.Set(ei, Skull, OuterAbs, statOuterSkull[ei])
		radii.Set(ei, Skull, ThickAbs, radii.At(ei, Skull, OuterAbs)-radii.At(ei, Skull, InnerAbs))
		// the spongy part
		radii.setSpongyFromSkull(ei)
	}

	if cf.AdjustRadius && cf.TargetSkull > 0 {
		radii.AdjustSkullThickness(points, voxelSize, cf.TargetSkull)
	}

	if !radii.AbsToRel(points) {
		return radii, fmt.Errorf("tissues: negative thickness in radii estimates")
	}
	mpi.Printf("tissues: estimated radii for %d electrodes over %d cliques\n", numEl, cf.NumCliques)
	return radii, nil
}

func newMaps(n, dim int) [][]float32 {
	m := make([][]float32, n)
	for i := range m {
		m[i] = make([]float32, dim)
	}
	return m
}

func meanMaps(m [][]float32) []float32 {
	out := make([]float32, len(m[0]))
	for _, row := range m {
		for i, v := range row {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float32(len(m))
	}
	return out
}

func rescaled(dir mat32.Vec3, radius float32, ratio mat32.Vec3) float32 {
	// modulate the scalar radius in 3D, per-axis
	v := dir.MulScalar(radius).Mul(ratio)
	return v.Length()
}
