// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package leadfield builds the Lead Field matrix K mapping unit current
// dipoles at brain solution points to scalp electrode potentials, using the
// locally spherical L-SMAC head model, and projects K onto arbitrary grids.
package leadfield

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ccnlab/esi/forward"
	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/tissues"
	"github.com/goki/mat32"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Compute fills K (numElectrodes x 3*numSolPoints) with the lead field of
// the given preset. All points must already be centered on the inverse
// center; sigma holds the per-shell conductivities innermost first; radii
// supplies the per-electrode relative shell radii. Each column is centered
// to zero mean across electrodes (average reference) before returning.
//
// Electrodes are processed in parallel: each writes only its own row, over
// shared immutable inputs. Cancellation is checked at electrode boundaries.
func Compute(ctx context.Context, spec *forward.Spec,
	electrodes, solPoints []mat32.Vec3, model *geom.SphereModel,
	sigma []float64, radii *tissues.Radii) (*mat.Dense, error) {

	numEl := len(electrodes)
	numSP := len(solPoints)
	if numEl == 0 || numSP == 0 {
		return nil, fmt.Errorf("leadfield: empty electrode or solution point set")
	}
	k := mat.NewDense(numEl, 3*numSP, nil)

	// solution point spherization radii: normalizing each SP by its own
	// model surface radius spherizes the whole distribution, so points are
	// very unlikely to land above the skull radius
	spSurfRadius := make([]float64, numSP)
	for i, sp := range solPoints {
		spSurfRadius[i] = float64(model.ToModel(sp).Length())
	}

	grp, _ := errgroup.WithContext(ctx)
	grp.SetLimit(runtime.GOMAXPROCS(0))

	for ei := 0; ei < numEl; ei++ {
		ei := ei
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			electrodePos := electrodes[ei]
			elRadius := float64(electrodePos.Length())
			if elRadius == 0 {
				return fmt.Errorf("leadfield: electrode %d at origin", ei)
			}
			// whatever the formula, we want a spherical model
			electrodePos = electrodePos.DivScalar(float32(elRadius))

			innerSkull, outerSkull := 0.0, 0.0
			switch spec.RadiusMode {
			case forward.SkullRadiusFixedRatio:
				innerSkull = spec.InnerSkullRadius
				outerSkull = spec.OuterSkullRadius
			case forward.SkullRadiusModulatedRatio:
				// what lies beyond the model scalp is considered more scalp,
				// proportionally minimizing the skull radii
				toModel := model.Unspherize(electrodes[ei], false)
				corr := elRadius / float64(toModel.Length())
				innerSkull = spec.InnerSkullRadius / corr
				outerSkull = spec.OuterSkullRadius / corr
			case forward.SkullRadiusPerElectrode:
				innerSkull = float64(radii.At(ei, tissues.Skull, tissues.InnerRel))
				outerSkull = float64(radii.At(ei, tissues.Skull, tissues.OuterRel))
			}

			r := make([]float64, spec.NumLayers)
			switch spec.NumLayers {
			case 3:
				r[0] = innerSkull
				r[1] = outerSkull
				r[2] = 1
			case 4:
				r[0] = float64(radii.At(ei, tissues.CSF, tissues.InnerRel))
				r[1] = innerSkull
				r[2] = outerSkull
				r[3] = 1
			case 6:
				r[0] = float64(radii.At(ei, tissues.CSF, tissues.InnerRel))
				r[1] = innerSkull
				r[2] = float64(radii.At(ei, tissues.SkullSpongy, tissues.InnerRel))
				r[3] = float64(radii.At(ei, tissues.SkullSpongy, tissues.OuterRel))
				r[4] = outerSkull
				r[5] = 1
			}

			for spi := 0; spi < numSP; spi++ {
				spradius := spSurfRadius[spi]
				if spradius == 0 {
					continue // leave the column zeroed, caught by CheckNull
				}
				var dip forward.Dipole
				dip.Position = solPoints[spi].DivScalar(float32(spradius))

				if spec.IsAry() {
					forward.Potential3ShellAry(&dip, forward.LeadField, electrodePos, r, sigma)
				} else {
					forward.PotentialNShell(&dip, forward.LeadField, electrodePos, r, sigma,
						forward.NShellMaxTerms, forward.NShellConvergence)
				}
				// values are for a normalized sphere of radius 1: rescale to
				// the physical sphere, radius converted to meters
				scale := float32(1.0 / (1000 * (spradius / 1000) * (spradius / 1000)))
				dir := dip.Direction.MulScalar(scale)

				k.Set(ei, 3*spi, float64(dir.X))
				k.Set(ei, 3*spi+1, float64(dir.Y))
				k.Set(ei, 3*spi+2, float64(dir.Z))
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	CenterColumns(k)
	return k, nil
}

// CenterColumns applies the average reference: K <- C K with C the centering
// matrix (1 - 1/n on the diagonal, -1/n off), forcing each column to zero
// mean over electrodes.
func CenterColumns(k *mat.Dense) {
	numEl, cols := k.Dims()
	inv := 1.0 / float64(numEl)
	for j := 0; j < cols; j++ {
		mean := 0.0
		for i := 0; i < numEl; i++ {
			mean += k.At(i, j)
		}
		mean *= inv
		for i := 0; i < numEl; i++ {
			k.Set(i, j, k.At(i, j)-mean)
		}
	}
}
