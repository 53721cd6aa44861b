// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tissues

import (
	"fmt"

	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/volume"
	"github.com/emer/empi/mpi"
	"github.com/goki/mat32"
)

// scanSubVoxel is the ray resolution when locating label transitions.
const scanSubVoxel = 0.1

// ScanTissuesMaxInterval locates the first and last transition into the label
// range [minIdx..maxIdx] along the ray from pInside to pSurface (both
// relative to 0), scanning the labelled tissues volume. Interfaces are
// placed half a sub-voxel step inside. Returns false when the range is never
// met. Interpolating between label values is wrong, so sampling is nearest
// neighbour.
func ScanTissuesMaxInterval(tiss *volume.Vol, center, pInside, pSurface mat32.Vec3,
	radiusMin, radiusMax float64, minIdx, maxIdx Index) (rmin, rmax float32, ok bool) {

	top := pSurface.Sub(pInside).Normal()
	base := center.Add(pInside).AddScalar(0.5)

	inRange := func(r float32) bool {
		p := base.Add(top.MulScalar(r))
		v := Index(tiss.Sample(p.X, p.Y, p.Z, volume.Nearest))
		return v >= minIdx && v <= maxIdx
	}

	// center toward surface
	rmin = float32(radiusMin)
	for ; float64(rmin) <= radiusMax; rmin++ {
		if !inRange(rmin) {
			continue
		}
		// entered the searched range: backtrack for sub-voxel accuracy
		for inRange(rmin) {
			rmin -= scanSubVoxel
		}
		rmin += 0.5 * scanSubVoxel // interface is in-between
		break
	}
	if float64(rmin) > radiusMax {
		return 0, 0, false
	}

	// surface toward center
	rmax = float32(radiusMax)
	for ; float64(rmax) >= radiusMin; rmax-- {
		if !inRange(rmax) {
			continue
		}
		for inRange(rmax) {
			rmax += scanSubVoxel
		}
		rmax -= 0.5 * scanSubVoxel
		break
	}
	if float64(rmax) < radiusMin {
		return 0, 0, false
	}
	return rmin, rmax, true
}

// SegConfig collects the options of the segmentation-based radii estimation.
type SegConfig struct {
	Smoothing    geom.SpatialFilterType `desc:"optional spatial filtering, applied to the CSF thickness only"`
	AdjustRadius bool                   `desc:"rescale skull thicknesses to the age-expected target"`
	TargetSkull  float64                `desc:"expected mean skull thickness in mm, 0 to skip"`
}

// EstimateRadiiSegmentation estimates all tissue radii per electrode by
// scanning a labelled tissues volume along each electrode ray. tissOrigin and
// mriCenter are the anatomical origins of the tissues volume and of the head
// MRI: when they differ (children vs adult templates), the inverse center is
// shifted by the difference before scanning.
func EstimateRadiiSegmentation(cf *SegConfig, points []mat32.Vec3,
	tiss *volume.Vol, tissOrigin, mriCenter mat32.Vec3,
	inverseCenter mat32.Vec3, voxelSize mat32.Vec3) (*Radii, error) {

	numEl := len(points)
	if numEl == 0 {
		return nil, fmt.Errorf("tissues: empty electrode set")
	}
	radii := NewRadii(numEl)

	if tissOrigin != mriCenter {
		delta := tissOrigin.Sub(mriCenter)
		inverseCenter = inverseCenter.Add(delta)
		mpi.Printf("tissues: MRI and tissues origins differ, shifting center by (%g %g %g)\n",
			delta.X, delta.Y, delta.Z)
	}

	// extract a smoothed brain surface: brain labels minus the CSF, gaps
	// filled by a dilate / relax / erode round
	brainLimit := tiss.Clone()
	brainLimit.ThresholdBinarize(float32(BrainMin), float32(BrainMax), 1)
	brainLimit.Morphology(volume.Dilate, 6, 0)
	brainLimit.Morphology(volume.Relax, 6, 1)
	brainLimit.Morphology(volume.Erode, 6, 0)
	brainLimit.Bg = 0

	var center0 mat32.Vec3

	for ei := 0; ei < numEl; ei++ {
		// skull first -- should always return non-null values
		rmin, rmax, ok := ScanTissuesMaxInterval(tiss, inverseCenter,
			center0, points[ei], 1, float64(points[ei].Length()), SkullMin, SkullMax)
		if !ok {
			continue // caught by the final consistency check
		}
		radii.Set(ei, Skull, InnerAbs, rmin)
		radii.Set(ei, Skull, OuterAbs, rmax)
		radii.Set(ei, Skull, ThickAbs, rmax-rmin)

		// spongy part estimated from the whole skull thickness, as it was at
		// segmentation construction
		radii.setSpongyFromSkull(ei)

		// land the inner CSF on the smoothed brain surface, keeping the CSF
		// layer above the brain and not deep into it
		pcsf := points[ei]
		if sp, bok := brainLimit.Resurface(pcsf, inverseCenter, 0.5); bok {
			pcsf = sp
		}
		radii.Set(ei, CSF, InnerAbs, pcsf.Length())
		radii.Set(ei, CSF, OuterAbs, radii.At(ei, Skull, InnerAbs))
		radii.Set(ei, CSF, ThickAbs, radii.At(ei, CSF, OuterAbs)-radii.At(ei, CSF, InnerAbs))
		if radii.At(ei, CSF, ThickAbs) < MinCsfThickness {
			radii.Set(ei, CSF, ThickAbs, MinCsfThickness)
			radii.Set(ei, CSF, InnerAbs, radii.At(ei, CSF, OuterAbs)-MinCsfThickness)
		}
	}

	// only the CSF, which is problematic, gets the optional filtering; the
	// inner part follows the filtered thickness
	if cf.Smoothing != geom.SpatialFilterNone {
		graph := geom.NewGraph(points)
		FilterRadiiLimit(radii, CSF, ThickAbs, cf.Smoothing, graph)
		for ei := 0; ei < numEl; ei++ {
			radii.Set(ei, CSF, InnerAbs, radii.At(ei, CSF, OuterAbs)-radii.At(ei, CSF, ThickAbs))
		}
	}

	if cf.AdjustRadius && cf.TargetSkull > 0 {
		radii.AdjustSkullThickness(points, voxelSize, cf.TargetSkull)
	}

	if !radii.AbsToRel(points) {
		return radii, fmt.Errorf("tissues: negative thickness in radii estimates")
	}
	return radii, nil
}
