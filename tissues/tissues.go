// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tissues estimates per-electrode head tissue radii (CSF, skull,
// spongy skull, scalp) from either T1 intensity volumes or a labelled tissue
// segmentation, and provides tissue conductivities including age-driven
// skull models.
package tissues

// Index identifies a head tissue. The order groups other, skull and brain
// tissues into contiguous ranges used when scanning labelled volumes.
type Index int

const (
	NoTissue Index = iota

	Scalp
	Fat
	Muscle
	CSF // CSF and Blood must stay consecutive for segmentation scans
	Blood
	Eye
	Air

	Skull
	SkullCompact
	SkullSpongy
	SkullSuture

	Brain
	Grey
	White

	NumTissues

	OtherMin = Scalp
	OtherMax = Air
	SkullMin = Skull
	SkullMax = SkullSuture
	BrainMin = Brain
	BrainMax = White
)

// Spec carries the display name, ROI-safe label and default conductivity of
// one tissue.
type Spec struct {
	Code         Index
	Text         string
	Label        string
	Conductivity float64 `desc:"default conductivity in S/m"`
}

// Specs is the default tissue table. Conductivities are literature means for
// isotropic tissue at body temperature.
var Specs = [NumTissues]Spec{
	{NoTissue, "No Tissue", "NoTissue", 0},

	{Scalp, "Scalp", "Scalp", 0.4137},
	{Fat, "Fat", "Fat", 0.0400},
	{Muscle, "Muscle", "Muscle", 0.3394},
	{CSF, "CSF", "CSF", 1.7100},
	{Blood, "Blood", "Blood", 0.5737},
	{Eye, "Eye", "Eye", 1.5000},
	{Air, "Air", "Air", 0},

	{Skull, "Skull", "Skull", 0.0116},
	{SkullCompact, "Compact Skull", "SkullCompact", 0.0046},
	{SkullSpongy, "Spongy Skull", "SkullSpongy", 0.0497},
	{SkullSuture, "Skull Suture", "SkullSuture", 0.0299},

	{Brain, "Brain", "Brain", 0.3300},
	{Grey, "Grey Matter", "Grey", 0.3787},
	{White, "White Matter", "White", 0.1462},
}

// String returns the tissue display name.
func (i Index) String() string {
	if i < 0 || i >= NumTissues {
		return "Unknown"
	}
	return Specs[i].Text
}

// IsSkull reports whether the index falls in the skull range.
func (i Index) IsSkull() bool { return i >= SkullMin && i <= SkullMax }

// IsBrain reports whether the index falls in the brain range.
func (i Index) IsBrain() bool { return i >= BrainMin && i <= BrainMax }

// WeightedBrainCond is the whole-brain conductivity, weighting each
// constituent tissue by its typical volume share.
func WeightedBrainCond() float64 {
	return 0.57*Specs[Grey].Conductivity +
		0.37*Specs[White].Conductivity +
		0.05*Specs[CSF].Conductivity +
		0.01*Specs[Blood].Conductivity
}

// WeightedBrainScalpCond is the grouped scalp+brain conductivity used by the
// Ary model, which shares a single value for the innermost and outermost
// shells.
func WeightedBrainScalpCond() float64 {
	return 0.5*WeightedBrainCond() + 0.5*Specs[Scalp].Conductivity
}

const (
	// SkullCompactToSpongyRatio is the spongy / compact conductivity ratio.
	SkullCompactToSpongyRatio = 3.6

	// SkullSpongyPercentage is the spongy share of the whole skull thickness.
	SkullSpongyPercentage = 0.55

	// SkullCompactThickness bounds, in mm, when deriving the compact tables.
	SkullCompactThickness    = 1.7
	SkullCompactMinThickness = 1.0
	SkullCompactMaxThickness = 2.4
)

// SplitSkullConductivity splits a whole-skull conductivity into its compact
// and spongy layer values, treating the layers as resistances in series with
// spongyPct of the thickness at ratio times the compact conductivity.
func SplitSkullConductivity(skullCond, compactToSpongyRatio, spongyPct float64) (compact, spongy float64) {
	compact = skullCond * ((1 - spongyPct) + spongyPct/compactToSpongyRatio)
	spongy = compact * compactToSpongyRatio
	return
}
