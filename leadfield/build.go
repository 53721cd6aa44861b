// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leadfield

import (
	"context"
	"fmt"

	"github.com/ccnlab/esi/forward"
	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/tissues"
	"github.com/ccnlab/esi/volume"
	"github.com/emer/emergent/erand"
	"github.com/emer/empi/mpi"
	"github.com/goki/mat32"
	"gonum.org/v1/gonum/mat"
)

// headModelNumPoints caps the surface cloud used by the spherization fit.
const headModelNumPoints = 2000

// Config collects the options of the high-level lead field builders.
type Config struct {
	Preset       forward.Preset         `desc:"forward model family"`
	Age          float64                `min:"0" max:"100" desc:"subject age in years, drives skull thickness and conductivity"`
	AdjustRadius bool                   `desc:"rescale estimated skull thicknesses to the age-expected mean"`
	Smoothing    geom.SpatialFilterType `desc:"spatial smoothing of the radius maps"`
	RndSeeds     erand.Seeds            `view:"-" desc:"a list of random seeds to use for each run"`
	Run          int                    `def:"0" desc:"run number, selects the clique resampling seed"`
}

// Defaults sets the standard build options.
func (cf *Config) Defaults() {
	cf.Preset = forward.Ary3ShellApprox
	cf.Age = 30
	cf.AdjustRadius = true
	cf.Smoothing = geom.SpatialFilterInterseptileWeightedMean
	cf.RndSeeds.Init(100) // max 100 runs
}

// seed returns the clique RNG seed of the current run.
func (cf *Config) seed() int64 {
	if len(cf.RndSeeds) == 0 {
		cf.RndSeeds.Init(100)
	}
	return cf.RndSeeds[cf.Run%len(cf.RndSeeds)]
}

// Result is the output of a lead field build, transferred by value to the
// caller.
type Result struct {
	K             *mat.Dense     `desc:"lead field, electrodes x 3*solution points"`
	Radii         *tissues.Radii `desc:"per-electrode tissue radii"`
	Electrodes    *geom.Points   `desc:"electrodes translated to the inverse center"`
	SolPoints     *geom.Points   `desc:"solution points translated to the inverse center"`
	CenterShift   mat32.Vec3     `desc:"translation from MRI center to the inverse center"`
	InverseCenter mat32.Vec3     `desc:"inverse center in volume coordinates"`
}

// geometry prepares the shared head geometry: surface extraction, inverse
// center, guillotine plane and spherization model. Electrodes and solution
// points are translated in place to the inverse center.
func geometry(head *volume.Vol, electrodes, solPoints *geom.Points) (
	*geom.SphereModel, mat32.Vec3, mat32.Vec3, error) {

	if head.Bg == 0 {
		head.EstimateBackground()
	}
	mriCenter := head.Origin

	surface := geom.NewPoints(head.SurfacePoints(mriCenter, 2))
	if len(surface.Pos) == 0 {
		return nil, mat32.Vec3{}, mat32.Vec3{}, fmt.Errorf("leadfield: no head surface found")
	}
	shift := geom.OptimalInverseTranslation(surface, solPoints, electrodes)

	volToPlane, ok := geom.GuillotinePlane(head)
	if !ok {
		return nil, mat32.Vec3{}, mat32.Vec3{}, fmt.Errorf("leadfield: guillotine plane not found")
	}

	// only the smooth top of the head constrains the spherization
	top := surface.Clone()
	geom.KeepTopHeadPoints(top, mriCenter, volToPlane)
	top.Downsample(headModelNumPoints)
	if top.Len() == 0 {
		return nil, mat32.Vec3{}, mat32.Vec3{}, fmt.Errorf("leadfield: no top head points above guillotine")
	}

	// translate all points to the inverse center
	electrodes.Translate(shift)
	solPoints.Translate(shift)
	top.Translate(shift)
	inverseCenter := mriCenter.Sub(shift)

	model, err := geom.FitSphereModel(top)
	if err != nil {
		return nil, mat32.Vec3{}, mat32.Vec3{}, err
	}
	return model, shift, inverseCenter, nil
}

// BuildFromT1 computes the lead field from a full head T1 volume and a brain
// mask (or probability) volume. Electrodes and solution points are given in
// MRI coordinates relative to the volume origin; the returned copies are
// translated to the inverse center.
func BuildFromT1(ctx context.Context, cf *Config, head, brain *volume.Vol,
	electrodes, solPoints *geom.Points) (*Result, error) {

	if err := validateInputs(cf, head, electrodes, solPoints); err != nil {
		return nil, err
	}
	els := electrodes.Clone()
	sps := solPoints.Clone()

	model, shift, inverseCenter, err := geometry(head, els, sps)
	if err != nil {
		return nil, err
	}

	spec, err := forward.NewSpec(cf.Preset)
	if err != nil {
		return nil, err
	}
	skullCond := tissues.AgeToSkullConductivity(cf.Age)
	sigma := spec.LayerConductivities(skullCond)

	// safe limit for the brain surface: force to a mask, close small gaps
	brainLimit := brain.Clone()
	if brainLimit.Bg == 0 {
		brainLimit.EstimateBackground()
	}
	brainLimit.Binarize(brainLimit.Bg, 1)
	brainLimit.Morphology(volume.Close, 1, 0)
	brainLimit.Bg = 0

	// some brains come without cerebellum, which the brain limits need:
	// run a local skull stripping and patch the rear-bottom quarter only
	// (all x, lower half of y and z), to avoid artifacts on the cortex top
	localBrain := head.SkullStrip(volume.Strip1B, 1.5*head.MeanVoxSize(), false)
	nx, ny, nz := brainLimit.Dims()
	for x := 0; x < nx; x++ {
		for y := 0; y < ny/2; y++ {
			for z := 0; z < nz/2; z++ {
				if localBrain.At(x, y, z) != 0 || brainLimit.At(x, y, z) != 0 {
					brainLimit.Set(x, y, z, 1)
				}
			}
		}
	}

	// safe limit for the skull radius search
	skullLimit := brainLimit.Clone()
	skullLimit.Morphology(volume.Dilate, 8, 0)
	skullLimit.Morphology(volume.Erode, 9, 0)
	skullLimit.Morphology(volume.Relax, 6, 1)
	skullLimit.Bg = 0

	tcf := &tissues.T1Config{}
	tcf.Defaults()
	tcf.Smoothing = cf.Smoothing
	tcf.AdjustRadius = cf.AdjustRadius
	tcf.TargetSkull = tissues.AgeToSkullThickness(cf.Age)
	tcf.RndSeed = cf.seed()

	radii, err := tissues.EstimateRadiiT1(tcf, els.Pos, head, skullLimit, brainLimit,
		inverseCenter, head.VoxSize)
	if err != nil {
		return nil, err
	}

	k, err := Compute(ctx, spec, els.Pos, sps.Pos, model, sigma, radii)
	if err != nil {
		return nil, err
	}
	mpi.Printf("leadfield: %s K %d x %d\n", cf.Preset, els.Len(), 3*sps.Len())
	return &Result{K: k, Radii: radii, Electrodes: els, SolPoints: sps,
		CenterShift: shift, InverseCenter: inverseCenter}, nil
}

// BuildFromSegmentation computes the lead field from a full head volume and
// a labelled tissues volume, typically a template segmentation.
func BuildFromSegmentation(ctx context.Context, cf *Config, head, tiss *volume.Vol,
	electrodes, solPoints *geom.Points) (*Result, error) {

	if err := validateInputs(cf, head, electrodes, solPoints); err != nil {
		return nil, err
	}
	els := electrodes.Clone()
	sps := solPoints.Clone()

	model, shift, inverseCenter, err := geometry(head, els, sps)
	if err != nil {
		return nil, err
	}

	spec, err := forward.NewSpec(cf.Preset)
	if err != nil {
		return nil, err
	}
	skullCond := tissues.AgeToSkullConductivity(cf.Age)
	sigma := spec.LayerConductivities(skullCond)

	scf := &tissues.SegConfig{
		Smoothing:    cf.Smoothing,
		AdjustRadius: cf.AdjustRadius,
		TargetSkull:  tissues.AgeToSkullThickness(cf.Age),
	}
	radii, err := tissues.EstimateRadiiSegmentation(scf, els.Pos, tiss,
		tiss.Origin, head.Origin, inverseCenter, head.VoxSize)
	if err != nil {
		return nil, err
	}

	k, err := Compute(ctx, spec, els.Pos, sps.Pos, model, sigma, radii)
	if err != nil {
		return nil, err
	}
	return &Result{K: k, Radii: radii, Electrodes: els, SolPoints: sps,
		CenterShift: shift, InverseCenter: inverseCenter}, nil
}

func validateInputs(cf *Config, head *volume.Vol, electrodes, solPoints *geom.Points) error {
	if head == nil {
		return fmt.Errorf("leadfield: missing head volume")
	}
	if err := head.Validate(); err != nil {
		return err
	}
	if electrodes == nil || electrodes.Len() == 0 {
		return fmt.Errorf("leadfield: empty electrode set")
	}
	if solPoints == nil || solPoints.Len() == 0 {
		return fmt.Errorf("leadfield: empty solution point set")
	}
	if cf.Age < 0 || cf.Age > 100 {
		return fmt.Errorf("leadfield: age %g out of [0, 100]", cf.Age)
	}
	return nil
}
