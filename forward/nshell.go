// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forward

import (
	"math"

	"github.com/goki/mat32"
)

// Convergence controls of the N-shell series. 150 terms were enough for
// 4 shells; raised to 300 for 6 shells by safety.
const (
	NShellMaxTerms    = 300
	NShellConvergence = 1e-6
)

// PotentialNShell evaluates the exact potential of a dipole inside N
// concentric isotropic spherical shells (Zhang equations 1I / 2I), for a
// normalized sphere: radii in r are relative to the outermost shell,
// r[len(r)-1] = 1, and the electrode sits on that surface. sigma holds the
// per-shell conductivities, innermost first.
//
// In LeadField mode the direction is set toward the electrode and scaled by
// the returned potential. The tangential term uses -cosBeta: the article
// says +cosBeta, but textbook tangential-dipole potentials require the
// negative sign.
//
// The series has no correct closed fallback when cosGamma approaches -1
// (dipole exactly opposite the electrode); the one-ULP clip keeps the sum
// finite there, nothing more.
func PotentialNShell(d *Dipole, mode Mode, electrode mat32.Vec3,
	r, sigma []float64, maxTerms int, convergence float64) float64 {

	if electrode.Length() == 0 {
		return math.Inf(1) // electrode in center
	}
	if d.Direction.Length() == 0 && mode != LeadField {
		return 0
	}
	numLayers := len(r)

	// not allowing the solution point above the innermost sphere
	spradius := math.Min(r[0], norm64(d.Position))
	spradius = d.shiftFromCenter(electrode, spradius)

	cosAlpha, sinAlpha, cosBeta, cosGamma := d.angles(mode, electrode)

	var pnm2, pnm1, plnm2, plnm1 float64
	ui := 0.0
	errSmooth := 0.0

	for n := 1; n <= maxTerms; n++ {
		nf := float64(n)

		roRe := (2*nf + 1) / nf * math.Pow(spradius, nf-1)

		// transfer matrix across the shell interfaces: only the conductivity
		// ratio of successive layers and the relative radii matter
		m11, m12, m21, m22 := 1.0, 0.0, 0.0, 1.0
		for k := 0; k < numLayers-1; k++ {
			sk := sigma[k] / sigma[k+1]
			rk := math.Pow(r[k], 2*nf+1)
			p11 := nf + (nf+1)*sk
			p12 := (nf + 1) * (sk - 1) / rk
			p21 := nf * (sk - 1) * rk
			p22 := (nf + 1) + nf*sk

			t11, t12, t21, t22 := m11, m12, m21, m22
			m11 = t11*p11 + t12*p21
			m12 = t11*p12 + t12*p22
			m21 = t21*p11 + t22*p21
			m22 = t21*p12 + t22*p22
		}
		mden := math.Pow(2*nf+1, float64(numLayers-1))
		m21 /= mden
		m22 /= mden

		// isotropic conductivities in all layers: fn = gn
		fn := nf / (nf*m22 + (1+nf)*m21)

		pn := nextLegendre(&pnm2, &pnm1, cosGamma, n)
		pln := nextLegendreP1(&plnm2, &plnm1, cosGamma, n)

		deltaUI := roRe * fn * (nf*cosAlpha*pn - cosBeta*sinAlpha*pln)

		// can happen on degenerate cosGamma = 0, checked before but be safe
		if math.IsNaN(deltaUI) || math.IsInf(deltaUI, 0) {
			break
		}
		ui += deltaUI

		// deltas oscillate in sign: the stopping criterion must smooth the
		// absolute relative deltas, a naive |delta| stop terminates too early
		den := ui
		if den == 0 {
			den = 1
		}
		rel := math.Abs(deltaUI / den)
		errSmooth = math.Max(rel, (errSmooth+rel)/2)
		if errSmooth < convergence {
			break
		}
	}

	ui /= fourPi * sigma[numLayers-1]

	if mode == LeadField {
		d.Direction = d.Direction.MulScalar(float32(ui))
	}
	return ui
}
