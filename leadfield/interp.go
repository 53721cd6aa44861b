// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leadfield

import (
	"math"

	"github.com/ccnlab/esi/geom"
	"github.com/goki/mat32"
	"gonum.org/v1/gonum/mat"
)

// Rejected is a bitset over solution points flagged for insufficient
// geometric support or numerically null / NaN columns.
type Rejected []bool

// NewRejected returns an all-clear set over n solution points.
func NewRejected(n int) Rejected { return make(Rejected, n) }

// Count returns the number of rejected points.
func (rj Rejected) Count() int {
	n := 0
	for _, r := range rj {
		if r {
			n++
		}
	}
	return n
}

// interp2Vectors interpolates between two 3D vectors at fraction t,
// preserving norms: directions follow the spherical arc, the norm
// interpolates linearly. Null vectors degrade gracefully to linear
// component interpolation.
func interp2Vectors(v1, v2 mat32.Vec3, t float32) mat32.Vec3 {
	t1 := 1 - t
	n1 := v1.Length()
	n2 := v2.Length()

	switch {
	case n1 == 0 && n2 == 0:
		return mat32.Vec3{}
	case n1 == 0:
		return v2.MulScalar(t)
	case n2 == 0:
		return v1.MulScalar(t1)
	}

	cosOmega := float64(v1.DivScalar(n1).Dot(v2.DivScalar(n2)))
	if cosOmega > 1 {
		cosOmega = 1
	} else if cosOmega < -1 {
		cosOmega = -1
	}
	if cosOmega == 1 || cosOmega == -1 {
		// aligned: boils down to per-component interpolation
		return v1.MulScalar(t1).Add(v2.MulScalar(t))
	}

	n := n1*t1 + n2*t
	omega := math.Acos(cosOmega)
	sinOmega := float64(n) / math.Sin(omega) // includes the norm rescaling

	w1 := float32(math.Sin(float64(t1)*omega)*sinOmega) / n1
	w2 := float32(math.Sin(float64(t)*omega)*sinOmega) / n2
	return v1.MulScalar(w1).Add(v2.MulScalar(w2))
}

// interp8Vectors tri-linearly interpolates the 8 corner vectors by seven
// successive two-vector interpolations over the three axes.
func interp8Vectors(v [8]mat32.Vec3, t, u, w float32) mat32.Vec3 {
	v00 := interp2Vectors(v[0], v[1], t)
	v01 := interp2Vectors(v[2], v[3], t)
	v10 := interp2Vectors(v[4], v[5], t)
	v11 := interp2Vectors(v[6], v[7], t)

	v0 := interp2Vectors(v00, v01, u)
	v1 := interp2Vectors(v10, v11, u)

	return interp2Vectors(v0, v1, w)
}

// gridSnap compensates transformation rounding so grid-aligned points land
// exactly on integer cells.
const gridSnap = 1e-3

// onPointTol: below this fractional distance a target point sits on an input
// point and the single column is copied without interpolation.
const onPointTol = 5e-3

// Interpolate projects K from the inputGrid solution points onto the
// outputGrid by tri-linear vector interpolation. Input points must be
// grid-aligned; their median spacing is the grid step. Output points without
// a complete 8-corner neighborhood are flagged in rejected and their columns
// left zeroed. Returns the interpolated matrix.
func Interpolate(k *mat.Dense, inputGrid, outputGrid *geom.Points, rejected Rejected) *mat.Dense {
	numEl, _ := k.Dims()
	numOut := outputGrid.Len()
	ktrg := mat.NewDense(numEl, 3*numOut, nil)

	// convert the grid-aligned points to an index volume, one cell per step,
	// with one spare step of margin on each side
	min, max := inputGrid.Bounds()
	step := float32(inputGrid.MedianSpacing())
	if step <= 0 {
		return ktrg
	}
	toVol := func(p mat32.Vec3) mat32.Vec3 {
		return p.Sub(min).DivScalar(step).AddScalar(1).AddScalar(gridSnap)
	}
	nx := int(float64(max.X-min.X)/float64(step)) + 3
	ny := int(float64(max.Y-min.Y)/float64(step)) + 3
	nz := int(float64(max.Z-min.Z)/float64(step)) + 3
	spvol := make([]int32, nx*ny*nz)
	cell := func(x, y, z int) int32 {
		if x < 0 || y < 0 || z < 0 || x >= nx || y >= ny || z >= nz {
			return 0
		}
		return spvol[(x*ny+y)*nz+z]
	}
	for ini, p := range inputGrid.Pos {
		q := toVol(p)
		x, y, z := int(q.X), int(q.Y), int(q.Z)
		if x >= 0 && y >= 0 && z >= 0 && x < nx && y < ny && z < nz {
			spvol[(x*ny+y)*nz+z] = int32(ini + 1)
		}
	}

	for outi, p := range outputGrid.Pos {
		if rejected[outi] {
			continue // caller wants to ignore this point, leave the LF to 0
		}
		q := toVol(p)
		x, y, z := int(q.X), int(q.Y), int(q.Z)
		fx := q.X - float32(x)
		fy := q.Y - float32(y)
		fz := q.Z - float32(z)

		// spot on a point: no interpolation needed
		if fx+fy+fz <= onPointTol {
			idx := cell(x, y, z)
			if idx == 0 {
				rejected[outi] = true
				continue
			}
			in := int(idx - 1)
			for el := 0; el < numEl; el++ {
				ktrg.Set(el, 3*outi, k.At(el, 3*in))
				ktrg.Set(el, 3*outi+1, k.At(el, 3*in+1))
				ktrg.Set(el, 3*outi+2, k.At(el, 3*in+2))
			}
			continue
		}

		// all 8 corners must have input points
		var idx [8]int32
		corners := [8][3]int{
			{x, y, z}, {x + 1, y, z}, {x, y + 1, z}, {x + 1, y + 1, z},
			{x, y, z + 1}, {x + 1, y, z + 1}, {x, y + 1, z + 1}, {x + 1, y + 1, z + 1},
		}
		ok := true
		for ci, c := range corners {
			idx[ci] = cell(c[0], c[1], c[2])
			if idx[ci] == 0 {
				ok = false
				break
			}
		}
		if !ok {
			rejected[outi] = true
			continue
		}

		for el := 0; el < numEl; el++ {
			var vs [8]mat32.Vec3
			for ci := 0; ci < 8; ci++ {
				in := int(idx[ci] - 1)
				vs[ci] = mat32.Vec3{
					X: float32(k.At(el, 3*in)),
					Y: float32(k.At(el, 3*in+1)),
					Z: float32(k.At(el, 3*in+2)),
				}
			}
			r := interp8Vectors(vs, fx, fy, fz)
			ktrg.Set(el, 3*outi, float64(r.X))
			ktrg.Set(el, 3*outi+1, float64(r.Y))
			ktrg.Set(el, 3*outi+2, float64(r.Z))
		}
	}
	return ktrg
}

// CheckNull flags solution points whose 3-column block is entirely zero or
// contains any non-finite number.
func CheckNull(k *mat.Dense, rejected Rejected) {
	numEl, cols := k.Dims()
	numSP := cols / 3
	for sp := 0; sp < numSP; sp++ {
		allZero := true
		for el := 0; el < numEl && allZero; el++ {
			for c := 0; c < 3; c++ {
				if k.At(el, 3*sp+c) != 0 {
					allZero = false
					break
				}
			}
		}
		if allZero {
			rejected[sp] = true
			continue
		}
		for el := 0; el < numEl; el++ {
			bad := false
			for c := 0; c < 3; c++ {
				v := k.At(el, 3*sp+c)
				if math.IsNaN(v) || math.IsInf(v, 0) {
					bad = true
					break
				}
			}
			if bad {
				rejected[sp] = true
				break
			}
		}
	}
}

// RejectPoints compacts K by deleting the column blocks of all rejected
// solution points, preserving row order. Returns k unchanged when nothing is
// rejected.
func RejectPoints(k *mat.Dense, rejected Rejected) *mat.Dense {
	if rejected.Count() == 0 {
		return k
	}
	numEl, cols := k.Dims()
	numSP := cols / 3
	numKeep := numSP - rejected.Count()
	kd := mat.NewDense(numEl, 3*numKeep, nil)
	trg := 0
	for sp := 0; sp < numSP; sp++ {
		if rejected[sp] {
			continue
		}
		for el := 0; el < numEl; el++ {
			kd.Set(el, 3*trg, k.At(el, 3*sp))
			kd.Set(el, 3*trg+1, k.At(el, 3*sp+1))
			kd.Set(el, 3*trg+2, k.At(el, 3*sp+2))
		}
		trg++
	}
	return kd
}
