// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Regularization selects which precomputed inverse to apply. Non-negative
// values are direct indices; the special values pick automatically.
type Regularization int

const (
	RegularizationNone       Regularization = -3
	RegularizationAutoGlobal Regularization = -2
	RegularizationAutoLocal  Regularization = -1

	// Regularization0 .. Regularization12 are the saved levels; the enum
	// values equal their numeric index.
	Regularization0 Regularization = 0

	NumSavedRegularizations = 13
)

// DefaultRegularization is the standard fallback level.
const DefaultRegularization Regularization = 4

// IsRegular reports whether the value is a direct regularization index.
func (r Regularization) IsRegular() bool {
	return r >= 0 && r < NumSavedRegularizations
}

// String returns the short display form used in file infixes.
func (r Regularization) String() string {
	switch r {
	case RegularizationNone:
		return "N"
	case RegularizationAutoGlobal:
		return "G"
	case RegularizationAutoLocal:
		return "L"
	default:
		return fmt.Sprintf("%d", int(r))
	}
}

// InverseMatrix holds a family of precomputed inverse operators, one per
// regularization level, each mapping electrode maps to 3D source vectors:
// dimensions (3*numSolPoints) x numElectrodes.
type InverseMatrix struct {
	Name string       `desc:"operator name, used in file infixes"`
	Invs []*mat.Dense `desc:"one inverse per regularization level"`
}

// NumElectrodes returns the electrode dimension of the operator.
func (im *InverseMatrix) NumElectrodes() int {
	if len(im.Invs) == 0 {
		return 0
	}
	_, c := im.Invs[0].Dims()
	return c
}

// NumSolPoints returns the number of solution points.
func (im *InverseMatrix) NumSolPoints() int {
	if len(im.Invs) == 0 {
		return 0
	}
	r, _ := im.Invs[0].Dims()
	return r / 3
}

// pick resolves a regularization request against the stored levels.
func (im *InverseMatrix) pick(reg Regularization) int {
	n := len(im.Invs)
	idx := int(reg)
	if !reg.IsRegular() {
		idx = int(DefaultRegularization)
	}
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// EstimateRegularization maps a noise estimate of the data onto the saved
// regularization levels: the noisier the data, the heavier the
// regularization. The noise fraction is the mean first-difference magnitude
// relative to the mean magnitude, which approaches sqrt(2) for white noise.
func (im *InverseMatrix) EstimateRegularization(data *Maps) Regularization {
	numTF := data.NumTF()
	if numTF < 2 {
		return DefaultRegularization
	}
	diff, mag := 0.0, 0.0
	for t := 1; t < numTF; t++ {
		for ci, v := range data.Vals[t] {
			diff += math.Abs(float64(v - data.Vals[t-1][ci]))
			mag += math.Abs(float64(v))
		}
	}
	if mag == 0 {
		return DefaultRegularization
	}
	noise := diff / (math.Sqrt2 * mag)
	if noise > 1 {
		noise = 1
	}
	n := len(im.Invs)
	if n == 0 {
		n = NumSavedRegularizations
	}
	return Regularization(math.Round(noise * float64(n-1)))
}

// Apply transforms each scalar map into source space using the requested
// regularization: vectorial output keeps the 3 components per solution
// point, scalar output stores the norm. Returns the transformed block and
// the regularization actually used (resolving AutoLocal on this data).
func (im *InverseMatrix) Apply(data *Maps, reg Regularization, vectorial bool) (*Maps, Regularization, error) {
	if im.NumElectrodes() != data.NumCh() {
		return nil, reg, fmt.Errorf("preproc: inverse matrix has %d electrodes, data has %d",
			im.NumElectrodes(), data.NumCh())
	}
	used := reg
	if reg == RegularizationAutoLocal || reg == RegularizationAutoGlobal {
		used = im.EstimateRegularization(data)
	}
	inv := im.Invs[im.pick(used)]
	numSP := im.NumSolPoints()
	numTF := data.NumTF()

	outCh := numSP
	if vectorial {
		outCh = 3 * numSP
	}
	out := NewMaps(numTF, outCh)
	out.SamplingFreq = data.SamplingFreq
	if vectorial {
		out.Kind = KindVector
	} else {
		out.Kind = KindPositive
	}

	m := mat.NewVecDense(data.NumCh(), nil)
	var s mat.VecDense
	for t := 0; t < numTF; t++ {
		for ci, v := range data.Vals[t] {
			m.SetVec(ci, float64(v))
		}
		s.MulVec(inv, m)
		if vectorial {
			for i := 0; i < 3*numSP; i++ {
				out.Vals[t][i] = float32(s.AtVec(i))
			}
		} else {
			for sp := 0; sp < numSP; sp++ {
				x := s.AtVec(3 * sp)
				y := s.AtVec(3*sp + 1)
				z := s.AtVec(3*sp + 2)
				out.Vals[t][sp] = float32(math.Sqrt(x*x + y*y + z*z))
			}
		}
	}
	return out, used, nil
}
