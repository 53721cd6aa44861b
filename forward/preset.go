// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forward

import (
	"fmt"
	"strings"

	"github.com/ccnlab/esi/tissues"
)

// Preset identifies a forward model family.
type Preset int

const (
	PresetNone Preset = iota

	// Ary3ShellApprox is the 3-shell approximation with radial / tangential
	// corrections onto an equivalent single sphere.
	Ary3ShellApprox

	// Exact3Shell .. Exact6Shell are the exact Legendre series models; 4
	// shells add the CSF, 6 shells split the skull into compact / spongy /
	// compact slabs.
	Exact3Shell
	Exact4Shell
	Exact6Shell

	PresetN
)

var presetNames = map[Preset]string{
	Ary3ShellApprox: "Ary3ShellApprox",
	Exact3Shell:     "Exact3Shell",
	Exact4Shell:     "Exact4Shell",
	Exact6Shell:     "Exact6Shell",
}

func (p Preset) String() string {
	if n, ok := presetNames[p]; ok {
		return n
	}
	return "None"
}

// PresetFromString resolves a preset by name, case insensitive.
func PresetFromString(name string) (Preset, error) {
	for p, n := range presetNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return PresetNone, fmt.Errorf("forward: unknown preset %q", name)
}

// SkullRadiusMode selects how the per-electrode shell radii are derived.
type SkullRadiusMode int

const (
	// SkullRadiusFixedRatio uses the preset constants: the skull gets
	// thicker in absolute with a bigger scalp.
	SkullRadiusFixedRatio SkullRadiusMode = iota

	// SkullRadiusModulatedRatio keeps the skull constant in absolute size by
	// modulating the ratios with the electrode vs model-surface radius.
	SkullRadiusModulatedRatio

	// SkullRadiusPerElectrode takes the relative radii estimated per
	// electrode from the tissues radii.
	SkullRadiusPerElectrode
)

// Spec carries the resolved parameters of a preset.
type Spec struct {
	Preset     Preset          `desc:"model family"`
	NumLayers  int             `desc:"number of concentric shells"`
	RadiusMode SkullRadiusMode `desc:"how shell radii are derived per electrode"`

	// default relative skull radii for the fixed and modulated ratio modes
	InnerSkullRadius float64 `def:"0.87"`
	OuterSkullRadius float64 `def:"0.92"`
}

// NewSpec resolves a preset into its spec, using per-electrode radii.
func NewSpec(p Preset) (*Spec, error) {
	sp := &Spec{Preset: p, RadiusMode: SkullRadiusPerElectrode,
		InnerSkullRadius: 0.87, OuterSkullRadius: 0.92}
	switch p {
	case Ary3ShellApprox, Exact3Shell:
		sp.NumLayers = 3
	case Exact4Shell:
		sp.NumLayers = 4
	case Exact6Shell:
		sp.NumLayers = 6
	default:
		return nil, fmt.Errorf("forward: preset undefined")
	}
	return sp, nil
}

// IsAry reports whether the model is the 3-shell approximation.
func (sp *Spec) IsAry() bool { return sp.Preset == Ary3ShellApprox }

// TissuesSelection returns the tissues involved in the preset's shells.
func (sp *Spec) TissuesSelection() []tissues.Index {
	switch sp.Preset {
	case Ary3ShellApprox, Exact3Shell:
		return []tissues.Index{tissues.Brain, tissues.Skull, tissues.Scalp}
	case Exact4Shell:
		return []tissues.Index{tissues.Brain, tissues.CSF, tissues.Skull, tissues.Scalp}
	case Exact6Shell:
		return []tissues.Index{tissues.Brain, tissues.CSF, tissues.Skull,
			tissues.SkullSpongy, tissues.Scalp}
	}
	return nil
}

// LayerConductivities returns the per-shell conductivities, innermost first,
// given the absolute age-driven skull conductivity.
func (sp *Spec) LayerConductivities(skullCond float64) []float64 {
	switch sp.Preset {
	case Ary3ShellApprox:
		// Ary groups scalp + brain against the skull
		bs := tissues.WeightedBrainScalpCond()
		return []float64{bs, skullCond, bs}
	case Exact3Shell:
		return []float64{tissues.WeightedBrainCond(), skullCond,
			tissues.Specs[tissues.Scalp].Conductivity}
	case Exact4Shell:
		return []float64{tissues.WeightedBrainCond(),
			tissues.Specs[tissues.CSF].Conductivity,
			skullCond,
			tissues.Specs[tissues.Scalp].Conductivity}
	case Exact6Shell:
		compact, spongy := tissues.SplitSkullConductivity(skullCond,
			tissues.SkullCompactToSpongyRatio, tissues.SkullSpongyPercentage)
		return []float64{tissues.WeightedBrainCond(),
			tissues.Specs[tissues.CSF].Conductivity,
			compact, spongy, compact,
			tissues.Specs[tissues.Scalp].Conductivity}
	}
	return nil
}
