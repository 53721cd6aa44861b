// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"fmt"
	"math"

	"github.com/goki/mat32"
	"gonum.org/v1/gonum/mat"
)

// SphereModel is an origin-centered ellipsoidal spherization of the top head
// surface: x²/a² + y²/b² + z²/c² = 1 on the model scalp. It maps the real
// head smoothly onto the unit sphere and back.
type SphereModel struct {
	Radii mat32.Vec3 `desc:"ellipsoid semi-axes a, b, c fitted on the head-top surface"`
}

// FitSphereModel estimates the ellipsoid semi-axes from head-top surface
// points (already translated to the inverse center), by linear least squares
// on the inverse squared axes. Fails when the fit degenerates (non-positive
// axis weight), which happens on pathological surface clouds.
func FitSphereModel(top *Points) (*SphereModel, error) {
	n := top.Len()
	if n < 16 {
		return nil, fmt.Errorf("geom: spherization needs more surface points, got %d", n)
	}
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range top.Pos {
		a.Set(i, 0, float64(p.X)*float64(p.X))
		a.Set(i, 1, float64(p.Y)*float64(p.Y))
		a.Set(i, 2, float64(p.Z)*float64(p.Z))
		b.SetVec(i, 1)
	}
	var w mat.VecDense
	if err := w.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("geom: spherization did not converge: %w", err)
	}
	sm := &SphereModel{}
	for i := 0; i < 3; i++ {
		wi := w.AtVec(i)
		if wi <= 0 || math.IsNaN(wi) || math.IsInf(wi, 0) {
			return nil, fmt.Errorf("geom: spherization did not converge, axis weight %g", wi)
		}
		r := float32(1 / math.Sqrt(wi))
		switch i {
		case 0:
			sm.Radii.X = r
		case 1:
			sm.Radii.Y = r
		case 2:
			sm.Radii.Z = r
		}
	}
	return sm, nil
}

// SurfaceRadius returns the model scalp radius along the direction of p.
func (sm *SphereModel) SurfaceRadius(p mat32.Vec3) float32 {
	l := p.Length()
	if l == 0 {
		return sm.Radii.X
	}
	u := p.DivScalar(l)
	q := float64(u.X/sm.Radii.X)*float64(u.X/sm.Radii.X) +
		float64(u.Y/sm.Radii.Y)*float64(u.Y/sm.Radii.Y) +
		float64(u.Z/sm.Radii.Z)*float64(u.Z/sm.Radii.Z)
	return float32(1 / math.Sqrt(q))
}

// ToModel rescales p so that its norm equals the model surface radius along
// its own direction: the ratio |p| / |ToModel(p)| is the relative depth of p
// inside the spherized head.
func (sm *SphereModel) ToModel(p mat32.Vec3) mat32.Vec3 {
	l := p.Length()
	if l == 0 {
		return p
	}
	return p.MulScalar(sm.SurfaceRadius(p) / l)
}

// Unspherize projects p onto the model scalp surface along its direction.
// The result stays centered on the model whatever translate is: the model
// holds no translation to undo.
func (sm *SphereModel) Unspherize(p mat32.Vec3, translate bool) mat32.Vec3 {
	_ = translate // model is origin-centered, the translation is carried by callers
	return sm.ToModel(p)
}
