// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forward

import (
	"math"

	"github.com/goki/mat32"
)

const fourPi = 4 * math.Pi

// aryVectorRescale is the historical scaling applied when the vectorial
// 1-shell potential feeds the Ary model. Not part of the analytical formula.
const aryVectorRescale = 2.46

// Potential1ShellVector is the direct vectorial computation for a single
// homogeneous sphere. Works for any real geometry, normalized or arbitrary
// radius. Gives identical results as the N-shell series for one layer.
func Potential1ShellVector(d *Dipole, electrode mat32.Vec3, sigma float64) float64 {
	rnorm := norm64(electrode)
	if rnorm == 0 {
		return math.Inf(1)
	}
	rhat := electrode.DivScalar(float32(rnorm))

	kev := electrode.Sub(d.Position)
	dnorm := norm64(kev)
	if dnorm == 0 {
		return math.Inf(1)
	}
	dhat := kev.DivScalar(float32(dnorm))

	// surface contribution plus the simpler infinite-medium term
	den := rnorm * dnorm * (1 + dot64(rhat, dhat))
	rd := rhat.Add(dhat).DivScalar(float32(den)).
		Add(dhat.MulScalar(float32(2 / (dnorm * dnorm))))

	return dot64(d.Direction, rd) / (fourPi * sigma)
}

// Potential1ShellApprox is the simpler infinite-medium dipole formula,
// used for validation.
func Potential1ShellApprox(d *Dipole, electrode mat32.Vec3, sigma float64) float64 {
	kev := electrode.Sub(d.Position)
	n := norm64(kev)
	return dot64(d.Direction, kev) / (fourPi * sigma * n * n * n)
}

// Potential1ShellLegendre evaluates the closed-form single-sphere potential
// of Zhang's equation 1H', splitting the dipole into its radial and
// tangential components. Spherical case only, radius normalized to 1.
// May shift a center dipole by an epsilon, modifying d.Position.
func Potential1ShellLegendre(d *Dipole, electrode mat32.Vec3, sigma float64) float64 {
	if electrode.Length() == 0 {
		return math.Inf(1) // electrode in center
	}
	if d.Direction.Length() == 0 {
		return 0
	}

	const r = 1.0
	spradius := math.Min(r, norm64(d.Position))
	spradius = d.shiftFromCenter(electrode, spradius)

	cosAlpha, sinAlpha, cosBeta, cosGamma := d.angles(Potentials, electrode)
	sinGamma := math.Sqrt(1 - cosGamma*cosGamma)

	// radial and tangential moment components
	dnorm := norm64(d.Direction)
	dr := dnorm * cosAlpha
	dt := dnorm * sinAlpha

	// distance between electrode and dipole
	l := norm64(electrode.Sub(d.Position))
	l3 := l * l * l

	ur := dr * (2*(r*cosGamma-spradius)/l3 + (1/(spradius*l) - 1/(spradius*r)))
	ut := dt * cosBeta * sinGamma *
		(2*r/l3 + (l+r)/(l*r*(r-spradius*cosGamma+l)))

	return (ur + ut) / (fourPi * sigma)
}

// nextLegendre advances the upward three-term recurrence of the Legendre
// polynomial P_n(x), for successive calls with n = 1, 2, 3... pm2 and pm1
// carry P_{n-2} and P_{n-1} across calls; the n = 1 call seeds them with the
// canonical P_0 = 1, P_1 = x.
func nextLegendre(pm2, pm1 *float64, x float64, n int) float64 {
	switch n {
	case 0:
		return 1
	case 1:
		*pm2 = 1
		*pm1 = x
		return x
	}
	pn := (float64(2*n-1)*x*(*pm1) - float64(n-1)*(*pm2)) / float64(n)
	*pm2 = *pm1
	*pm1 = pn
	return pn
}

// nextLegendreP1 advances the upward recurrence of the order-1 associated
// Legendre function P^1_n(x); the n = 1 call seeds the carries with the
// canonical P^1_0 = 0, P^1_1 = -sqrt(1-x²).
func nextLegendreP1(pm2, pm1 *float64, x float64, n int) float64 {
	switch n {
	case 0:
		return 0
	case 1:
		p1 := -math.Sqrt(1 - x*x)
		*pm2 = 0
		*pm1 = p1
		return p1
	}
	pn := (float64(2*n-1)*x*(*pm1) - float64(n)*(*pm2)) / float64(n-1)
	*pm2 = *pm1
	*pm1 = pn
	return pn
}
