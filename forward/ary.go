// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forward

import (
	"math"

	"github.com/goki/mat32"
)

// Iteration controls of the 3-shell to 1-shell equivalence search. The
// values are data-tuned; the radius floor avoids the instability of the
// rational terms at very deep dipoles, where the result is extrapolated by
// linear scaling from the floor instead.
const (
	// number of Legendre terms grows with relative dipole depth
	NumLegendreTermsAryMin = 20
	NumLegendreTermsAryMax = 100

	Shell3to1StepInit     = 0.05
	Shell3to1Convergence  = 1e-6
	Shell3to1LowestRadius = 0.10
)

// aryFn is the simplified per-term Legendre factor of the Ary model
// (equation 3a); most terms cancel out against the 1-shell expansion.
func aryFn(n, xi, innerSkull, outerSkull float64) float64 {
	dn := ((n+1)*xi+n)*
		((n*xi/(n+1)+1)+
			(1-xi)*(math.Pow(innerSkull, 2*n+1)-math.Pow(outerSkull, 2*n+1))) -
		n*(1-xi)*(1-xi)*math.Pow(innerSkull/outerSkull, 2*n+1)

	return xi * (2*n + 1) * (2*n + 1) / (dn * (n + 1))
}

func aryNumLegendre(radius3, innerSkull float64) int {
	frac := radius3 / innerSkull
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	return NumLegendreTermsAryMin + int(frac*float64(NumLegendreTermsAryMax-NumLegendreTermsAryMin))
}

// rho accumulates the radial (factor 2n+1) or tangential
// (factor (2n+1)(n+1)/n) weighted error between a 3-shell dipole at radius3
// and its 1-shell equivalent at radius1 (equations 9 and 16). The constant
// muFF term and the moment drop out of the minimization.
func rho(radius1, radius3, xi, innerSkull, outerSkull float64, tangential bool) float64 {
	if radius1 == 0 || radius3 == 0 {
		return 0
	}
	if radius3 < Shell3to1LowestRadius {
		return rho(radius1*Shell3to1LowestRadius/radius3, Shell3to1LowestRadius,
			xi, innerSkull, outerSkull, tangential)
	}
	mubb, mubF := 0.0, 0.0
	numLeg := aryNumLegendre(radius3, innerSkull)
	for i := 1; i <= numLeg; i++ {
		n := float64(i)
		factor := 2*n + 1
		if tangential {
			factor *= (n + 1) / n
		}
		mubb += factor * math.Pow(radius1, 2*n-2)
		mubF += factor * math.Pow(radius1, n-1) * math.Pow(radius3, n-1) *
			aryFn(n, xi, innerSkull, outerSkull)
	}
	return -(mubF * mubF) / mubb
}

// r3ToR1 finds the equivalent 1-shell radius minimizing rho: a coarse linear
// descent from radius3, then a dichotomic refinement halving the step until
// convergence.
func r3ToR1(radius3, xi, innerSkull, outerSkull float64, tangential bool) float64 {
	if radius3 == 0 {
		return 0
	}
	radius1 := radius3
	step := radius3 * Shell3to1StepInit

	old := rho(radius1, radius3, xi, innerSkull, outerSkull, tangential)
	for {
		radius1 -= step
		cur := rho(radius1, radius3, xi, innerSkull, outerSkull, tangential)
		if cur >= old || radius1 < 0 {
			break
		}
		old = cur
	}
	// center back to the closest absolute min
	radius1 += step
	if radius1 < 0 {
		radius1 = 0
	} else if radius1 > radius3 {
		radius1 = radius3
	}

	step /= 2
	for step > Shell3to1Convergence {
		left := rho(radius1-step, radius3, xi, innerSkull, outerSkull, tangential)
		right := rho(radius1+step, radius3, xi, innerSkull, outerSkull, tangential)
		if left < right {
			radius1 -= step
		} else {
			radius1 += step
		}
		step /= 2
	}
	return radius1
}

// m3ToM1 is the closed-form moment correction ratio at the equivalent radius
// (equations 8 and 15).
func m3ToM1(radius1, radius3, xi, innerSkull, outerSkull float64, tangential bool) float64 {
	if radius3 == 0 {
		radius1, radius3 = 1e-10, 1e-10
	}
	mubb, mubF := 0.0, 0.0
	numLeg := aryNumLegendre(radius3, innerSkull)
	for i := 1; i <= numLeg; i++ {
		n := float64(i)
		factor := 2*n + 1
		if tangential {
			factor *= (n + 1) / n
		}
		mubb += factor * math.Pow(radius1, 2*n-2)
		mubF += factor * math.Pow(radius1, n-1) * math.Pow(radius3, n-1) *
			aryFn(n, xi, innerSkull, outerSkull)
	}
	return mubF / mubb
}

// Potential3ShellAry computes the potential of a dipole in a 3-shell sphere
// by the Ary approximation: the dipole is replaced by an equivalent 1-shell
// dipole through radius and moment corrections, weighted by its radial and
// tangential contributions. Positions are normalized to the outer sphere;
// r = {innerSkull, outerSkull, 1}; sigma[0] is the shared brain / scalp
// conductivity and sigma[1] the skull. The dipole is updated in place:
// position shifted to the equivalent radius, and in LeadField mode the
// direction scaled by the potential.
func Potential3ShellAry(d *Dipole, mode Mode, electrode mat32.Vec3,
	r, sigma []float64) float64 {

	xi := sigma[1] / sigma[0]
	innerSkull := r[0]
	outerSkull := r[1]

	if mode == LeadField {
		d.SetDirection(electrode)
	}

	radius3 := norm64(d.Position)
	radius3 = d.shiftFromCenter(electrode, radius3)

	radialR1 := r3ToR1(radius3, xi, innerSkull, outerSkull, false)
	tangentialR1 := r3ToR1(radius3, xi, innerSkull, outerSkull, true)

	radialM1 := m3ToM1(radialR1, radius3, xi, innerSkull, outerSkull, false)
	tangentialM1 := m3ToM1(tangentialR1, radius3, xi, innerSkull, outerSkull, true)

	// how radial the dipole is, relative to its own position
	radialW := cosine64(d.Position, d.Direction)
	radialW *= radialW
	// electrode perfectly aligned with the position causes errors; removing
	// an epsilon puts the train back on tracks
	if math.Abs(radialW-1) < epsF32 {
		radialW = 1 - 2.220446049250313e-16
	}
	tangentialW := 1 - radialW

	var radius3to1, moment3to1 float64
	if radius3 > 0 {
		radius3to1 = (radialW*radialR1 + tangentialW*tangentialR1) / radius3
	}
	moment3to1 = radialW*radialM1 + tangentialW*tangentialM1

	// deep-shifted position of the equivalent 1-shell dipole
	d.Position = d.Position.MulScalar(float32(radius3to1))

	if mode == LeadField {
		// new position -> new direction, evaluated exactly toward the electrode
		d.SetDirection(electrode)
	}
	ui := Potential1ShellVector(d, electrode, sigma[0]) / aryVectorRescale * moment3to1

	if mode == LeadField {
		d.Direction = d.Direction.MulScalar(float32(ui))
	}
	return ui
}
