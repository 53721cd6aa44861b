// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package forward computes the analytical scalp potential of a current
// dipole inside concentric isotropic spherical shells: 1-shell closed forms,
// an N-shell exact Legendre series, and the 3-shell Ary approximation with
// radial / tangential corrections.
package forward

import (
	"math"

	"github.com/goki/mat32"
)

// Mode selects how a potential routine is invoked.
type Mode int

const (
	// Potentials evaluates the potential of a fully specified dipole.
	Potentials Mode = iota

	// LeadField means the dipole direction is not given: the model sets it
	// toward the electrode and scales it by the computed potential, so the
	// written vector v satisfies dot(v, E_unit) = potential.
	LeadField
)

// Dipole is a current dipole: a position inside the innermost shell and a
// direction carrying the moment. In LeadField mode the direction is set by
// the model and the scaled magnitude is written back as the column value.
type Dipole struct {
	Position  mat32.Vec3 `desc:"dipole location, normalized sphere coordinates"`
	Direction mat32.Vec3 `desc:"dipole moment vector"`
}

// SetDirection points the dipole toward target with unit norm.
func (d *Dipole) SetDirection(target mat32.Vec3) {
	l := target.Length()
	if l > 0 {
		d.Direction = target.DivScalar(l)
	} else {
		d.Direction = mat32.Vec3{}
	}
}

// float32 epsilon used for all degenerate-geometry tests
const epsF32 = 1.1920929e-7

// one double ULP below 1, used to keep Legendre recurrences finite
const oneMinusULP = 1 - 2.220446049250313e-16

func dot64(a, b mat32.Vec3) float64 {
	return float64(a.X)*float64(b.X) + float64(a.Y)*float64(b.Y) + float64(a.Z)*float64(b.Z)
}

func norm64(a mat32.Vec3) float64 {
	return math.Sqrt(dot64(a, a))
}

// cosine64 is the cosine of the angle between a and b, 0 when either is null.
func cosine64(a, b mat32.Vec3) float64 {
	na, nb := norm64(a), norm64(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := dot64(a, b) / (na * nb)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return c
}

// isAligned reports whether a and b are collinear within tolerance.
func isAligned(a, b mat32.Vec3, tol float64) bool {
	return math.Abs(math.Abs(cosine64(a, b))-1) < tol
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// clipCosine nudges |c| away from 1 by one ULP, preventing NaNs in the
// Legendre recurrences when vectors are perfectly aligned.
func clipCosine(c float64) float64 {
	if math.Abs(math.Abs(c)-1) < epsF32 {
		return sign(c) * oneMinusULP
	}
	return c
}

// angles computes the three geometry angles shared by the spherical models:
// cosAlpha / sinAlpha between dipole position and direction, cosBeta the
// tangential plane orientation, cosGamma between dipole position and
// electrode. In LeadField mode the direction is set toward the electrode and
// cosBeta is 1 by construction.
func (d *Dipole) angles(mode Mode, electrode mat32.Vec3) (cosAlpha, sinAlpha, cosBeta, cosGamma float64) {
	if mode == LeadField {
		d.SetDirection(electrode)
		cosBeta = 1
	} else {
		posNull := d.Position.Length() == 0
		if posNull ||
			isAligned(d.Direction, d.Position, epsF32) ||
			isAligned(electrode, d.Position, epsF32) {
			// degenerate: everything is in the same plane anyway
			cosBeta = 1
		} else {
			// sequence matters to get the correct angle
			p1 := d.Direction.Cross(d.Position)
			p2 := electrode.Cross(d.Position)
			cosBeta = cosine64(p1, p2)
		}
	}

	if d.Position.Length() == 0 {
		cosAlpha = 1
		sinAlpha = 0
		cosGamma = 0 // arbitrary, simplifies the Legendre terms
	} else {
		cosAlpha = cosine64(d.Position, d.Direction)
		sinAlpha = math.Sqrt(1 - cosAlpha*cosAlpha)
		cosGamma = cosine64(d.Position, electrode)
	}

	cosGamma = clipCosine(cosGamma)
	if c := clipCosine(cosAlpha); c != cosAlpha {
		cosAlpha = c
		sinAlpha = math.Sqrt(1 - cosAlpha*cosAlpha)
	}
	return
}

// shiftFromCenter moves a dipole sitting exactly at the center by an epsilon
// toward the electrode, returning the resulting radius.
func (d *Dipole) shiftFromCenter(electrode mat32.Vec3, spradius float64) float64 {
	if spradius >= epsF32 {
		return spradius
	}
	el := norm64(electrode)
	if el == 0 {
		return spradius
	}
	d.Position = electrode.MulScalar(float32(epsF32 / el))
	return norm64(d.Position)
}
