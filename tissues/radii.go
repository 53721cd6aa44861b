// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tissues

import (
	"sort"

	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
	"gonum.org/v1/gonum/stat"
)

// Limit indexes the per-tissue stored radii: inner and outer interface plus
// thickness, each in absolute voxels and relative to the outer scalp.
type Limit int

const (
	InnerAbs Limit = iota
	OuterAbs
	ThickAbs

	InnerRel
	OuterRel
	ThickRel

	NumLimits
)

// LimitNames are the column names used when reporting radii tables.
var LimitNames = [NumLimits]string{"Inner", "Outer", "Thick", "Inner%", "Outer%", "Thick%"}

// Minimum tissue thicknesses, in mm. Could be small, but not 0.
const (
	MinCsfThickness         = 0.1
	MaxCsfThickness         = 4.0
	MinSpongySkullThickness = 0.1
	MinSkullThickness       = 0.1
	MinScalpThickness       = 1.0
)

// Radii stores, per electrode, per tissue and per limit, a radius estimate.
// Owned by the build pipeline and returned by value to callers.
type Radii struct {
	Vals etensor.Float32 `desc:"radius values, shape electrodes x tissues x limits"`
	NumE int             `desc:"number of electrodes"`
}

// NewRadii allocates a zeroed radii array for numEl electrodes.
func NewRadii(numEl int) *Radii {
	r := &Radii{NumE: numEl}
	r.Vals.SetShape([]int{numEl, int(NumTissues), int(NumLimits)}, nil,
		[]string{"El", "Tissue", "Limit"})
	return r
}

// At returns the radius for (electrode, tissue, limit).
func (r *Radii) At(el int, ti Index, li Limit) float32 {
	return r.Vals.Values[(el*int(NumTissues)+int(ti))*int(NumLimits)+int(li)]
}

// Set stores the radius for (electrode, tissue, limit).
func (r *Radii) Set(el int, ti Index, li Limit, v float32) {
	r.Vals.Values[(el*int(NumTissues)+int(ti))*int(NumLimits)+int(li)] = v
}

// add is a small helper for in-place adjustment.
func (r *Radii) add(el int, ti Index, li Limit, v float32) {
	r.Vals.Values[(el*int(NumTissues)+int(ti))*int(NumLimits)+int(li)] += v
}

// SkullThicknessToSpongy estimates the spongy layer thickness as a ratio of
// the whole skull, clipping the remaining compact bone tables into their
// anatomical bounds. Can return 0.
func SkullThicknessToSpongy(skullThickness, spongyPct, compactMin, compactMax float64) float64 {
	spongy := spongyPct * skullThickness
	compact := clip((skullThickness-spongy)/2, compactMin, compactMax)
	spongy = skullThickness - 2*compact
	if spongy < 0 {
		spongy = 0
	}
	return spongy
}

// setSpongyFromSkull centers the derived spongy layer about the middle of
// the skull interval for one electrode.
func (r *Radii) setSpongyFromSkull(el int) {
	midSkull := (r.At(el, Skull, InnerAbs) + r.At(el, Skull, OuterAbs)) / 2
	spongy := SkullThicknessToSpongy(float64(r.At(el, Skull, ThickAbs)),
		SkullSpongyPercentage, SkullCompactMinThickness, SkullCompactMaxThickness)
	if spongy < MinSpongySkullThickness {
		spongy = MinSpongySkullThickness
	}
	r.Set(el, SkullSpongy, ThickAbs, float32(spongy))
	r.Set(el, SkullSpongy, InnerAbs, midSkull-float32(spongy)/2)
	r.Set(el, SkullSpongy, OuterAbs, midSkull+float32(spongy)/2)
}

// AdjustSkullThickness rescales the estimated skull thicknesses so that
// their upper-head median matches the expected target (in mm). Shrinking
// moves only the inner surfaces outward, protecting the more reliable outer
// scalp side; expansion moves only the outer surfaces. CSF is updated to
// follow the inner skull. Skull, spongy skull and CSF thicknesses must all
// be non-null on entry.
func (r *Radii) AdjustSkullThickness(points []mat32.Vec3, voxelSize mat32.Vec3, targetMM float64) {
	if targetMM <= 0 {
		return
	}
	var thicks []float64
	for el := 0; el < r.NumE; el++ {
		// limit the stats to the upper part of the skull, where the target
		// thickness has been measured
		if points[el].Z > 0 && r.At(el, Skull, ThickAbs) > 0 {
			thicks = append(thicks, float64(r.At(el, Skull, ThickAbs)))
		}
	}
	if len(thicks) == 0 {
		return
	}
	sort.Float64s(thicks)
	meanVox := float64(voxelSize.X+voxelSize.Y+voxelSize.Z) / 3
	observed := stat.Quantile(0.5, stat.Empirical, thicks, nil) * meanVox
	if observed <= 0 {
		return
	}
	rescale := targetMM / observed

	for el := 0; el < r.NumE; el++ {
		if r.At(el, Skull, ThickAbs) == 0 {
			continue
		}
		// delta positive for shrinkage, negative for expansion
		deltaSkull := r.At(el, Skull, ThickAbs) * float32(1-rescale)
		deltaSpongy := r.At(el, SkullSpongy, ThickAbs) * float32(1-rescale)

		if rescale <= 1 {
			// shrinking: only push the inner skull outward
			r.add(el, Skull, InnerAbs, deltaSkull)
			r.add(el, SkullSpongy, InnerAbs, deltaSpongy)
			// CSF follows the inner skull
			r.Set(el, CSF, OuterAbs, r.At(el, Skull, InnerAbs))
			thick := r.At(el, CSF, OuterAbs) - r.At(el, CSF, InnerAbs)
			if thick < MinCsfThickness {
				thick = MinCsfThickness
			}
			r.Set(el, CSF, ThickAbs, thick)
			r.Set(el, CSF, InnerAbs, r.At(el, CSF, OuterAbs)-thick)
		} else {
			// expanding: only the outer side, inner is already close to the brain
			r.add(el, Skull, OuterAbs, -deltaSkull)
			r.add(el, SkullSpongy, OuterAbs, -deltaSpongy)
		}

		r.Set(el, Skull, ThickAbs, r.At(el, Skull, OuterAbs)-r.At(el, Skull, InnerAbs))
		r.Set(el, SkullSpongy, ThickAbs, r.At(el, SkullSpongy, OuterAbs)-r.At(el, SkullSpongy, InnerAbs))
	}
}

// AbsToRel fills in the scalp interval from the electrode radii, then
// normalizes all absolute radii by the outer scalp radius of each electrode.
// Scalp outer relative is forced to 1. Returns false when any thickness came
// out negative, which callers treat as a radius failure.
func (r *Radii) AbsToRel(points []mat32.Vec3) bool {
	ok := true
	for el := 0; el < r.NumE; el++ {
		r.Set(el, Scalp, OuterAbs, points[el].Length())
		r.Set(el, Scalp, InnerAbs, r.At(el, Skull, OuterAbs))
		r.Set(el, Scalp, ThickAbs, r.At(el, Scalp, OuterAbs)-r.At(el, Scalp, InnerAbs))

		// force min scalp thickness, pushing the skull inward
		if r.At(el, Scalp, ThickAbs) <= MinScalpThickness {
			r.Set(el, Scalp, ThickAbs, MinScalpThickness)
			r.Set(el, Scalp, InnerAbs, r.At(el, Scalp, OuterAbs)-MinScalpThickness)
			r.Set(el, Skull, OuterAbs, r.At(el, Scalp, InnerAbs))
			r.Set(el, Skull, ThickAbs, r.At(el, Skull, OuterAbs)-r.At(el, Skull, InnerAbs))
		}

		maxRadius := r.At(el, Scalp, OuterAbs)
		for ti := NoTissue + 1; ti < NumTissues; ti++ {
			r.Set(el, ti, InnerRel, relOf(r.At(el, ti, InnerAbs), maxRadius))
			r.Set(el, ti, OuterRel, relOf(r.At(el, ti, OuterAbs), maxRadius))
			r.Set(el, ti, ThickRel, relOf(r.At(el, ti, ThickAbs), maxRadius))
		}
		r.Set(el, Scalp, OuterRel, 1)

		if r.At(el, CSF, ThickAbs) < 0 ||
			r.At(el, Skull, ThickAbs) < 0 ||
			r.At(el, SkullSpongy, ThickAbs) < 0 ||
			r.At(el, Scalp, ThickAbs) < 0 {
			ok = false
		}
	}
	return ok
}

func relOf(v, max float32) float32 {
	if max <= 0 {
		return 0
	}
	rel := v / max
	if rel > 1 {
		rel = 1
	}
	return rel
}
