// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package volume

import (
	"fmt"
	"sort"
)

// MorphOp enumerates the morphology / smoothing filters.
type MorphOp int

const (
	Erode MorphOp = iota
	Dilate
	Open
	Close
	Min
	Max
	Median
	FastGaussian
	Relax
)

// seOffsets returns the voxel offsets of a spherical structuring element of
// the given diameter (in voxels).
func seOffsets(diameter float32) [][3]int {
	r := diameter / 2
	ri := int(r + 0.5)
	r2 := r * r
	var offs [][3]int
	for dx := -ri; dx <= ri; dx++ {
		for dy := -ri; dy <= ri; dy++ {
			for dz := -ri; dz <= ri; dz++ {
				if float32(dx*dx+dy*dy+dz*dz) <= r2 {
					offs = append(offs, [3]int{dx, dy, dz})
				}
			}
		}
	}
	if len(offs) == 0 {
		offs = append(offs, [3]int{0, 0, 0})
	}
	return offs
}

// Morphology applies op with a spherical structuring element of the given
// diameter in voxels. iter is only used by Relax. The volume is modified
// in place.
func (v *Vol) Morphology(op MorphOp, diameter float32, iter int) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if diameter <= 0 {
		return fmt.Errorf("volume: morphology with zero diameter")
	}
	switch op {
	case Erode, Min:
		v.rankFilter(diameter, func(vals []float32) float32 { return minOf(vals) })
	case Dilate, Max:
		v.rankFilter(diameter, func(vals []float32) float32 { return maxOf(vals) })
	case Open:
		v.Morphology(Erode, diameter, 0)
		v.Morphology(Dilate, diameter, 0)
	case Close:
		v.Morphology(Dilate, diameter, 0)
		v.Morphology(Erode, diameter, 0)
	case Median:
		v.rankFilter(diameter, func(vals []float32) float32 {
			sort.Slice(vals, func(i, j int) bool { return vals[i] < vals[j] })
			return vals[len(vals)/2]
		})
	case FastGaussian:
		// three box passes approximate a Gaussian of the given diameter
		box := int(diameter/2 + 0.5)
		if box < 1 {
			box = 1
		}
		for pass := 0; pass < 3; pass++ {
			v.boxBlur(box)
		}
	case Relax:
		if iter < 1 {
			iter = 1
		}
		for pass := 0; pass < iter; pass++ {
			v.relaxOnce()
		}
	default:
		return fmt.Errorf("volume: unknown morphology op %d", op)
	}
	return nil
}

func minOf(vals []float32) float32 {
	m := vals[0]
	for _, val := range vals[1:] {
		if val < m {
			m = val
		}
	}
	return m
}

func maxOf(vals []float32) float32 {
	m := vals[0]
	for _, val := range vals[1:] {
		if val > m {
			m = val
		}
	}
	return m
}

func (v *Vol) rankFilter(diameter float32, rank func([]float32) float32) {
	offs := seOffsets(diameter)
	src := make([]float32, len(v.Data.Values))
	copy(src, v.Data.Values)
	vals := make([]float32, 0, len(offs))
	for x := 0; x < v.nx; x++ {
		for y := 0; y < v.ny; y++ {
			for z := 0; z < v.nz; z++ {
				vals = vals[:0]
				for _, o := range offs {
					xx, yy, zz := x+o[0], y+o[1], z+o[2]
					if xx < 0 || yy < 0 || zz < 0 || xx >= v.nx || yy >= v.ny || zz >= v.nz {
						vals = append(vals, 0)
						continue
					}
					vals = append(vals, src[v.idx(xx, yy, zz)])
				}
				v.Data.Values[v.idx(x, y, z)] = rank(vals)
			}
		}
	}
}

// boxBlur runs one separable box pass of half-width w along each axis.
func (v *Vol) boxBlur(w int) {
	src := make([]float32, len(v.Data.Values))
	for axis := 0; axis < 3; axis++ {
		copy(src, v.Data.Values)
		for x := 0; x < v.nx; x++ {
			for y := 0; y < v.ny; y++ {
				for z := 0; z < v.nz; z++ {
					var sum float32
					n := 0
					for d := -w; d <= w; d++ {
						xx, yy, zz := x, y, z
						switch axis {
						case 0:
							xx += d
						case 1:
							yy += d
						case 2:
							zz += d
						}
						if xx < 0 || yy < 0 || zz < 0 || xx >= v.nx || yy >= v.ny || zz >= v.nz {
							continue
						}
						sum += src[v.idx(xx, yy, zz)]
						n++
					}
					v.Data.Values[v.idx(x, y, z)] = sum / float32(n)
				}
			}
		}
	}
}

// relaxOnce replaces every voxel by the mean of itself and its 6 neighbors.
func (v *Vol) relaxOnce() {
	src := make([]float32, len(v.Data.Values))
	copy(src, v.Data.Values)
	at := func(x, y, z int) float32 {
		if x < 0 || y < 0 || z < 0 || x >= v.nx || y >= v.ny || z >= v.nz {
			return 0
		}
		return src[v.idx(x, y, z)]
	}
	for x := 0; x < v.nx; x++ {
		for y := 0; y < v.ny; y++ {
			for z := 0; z < v.nz; z++ {
				sum := at(x, y, z) + at(x-1, y, z) + at(x+1, y, z) +
					at(x, y-1, z) + at(x, y+1, z) + at(x, y, z-1) + at(x, y, z+1)
				v.Data.Values[v.idx(x, y, z)] = sum / 7
			}
		}
	}
}

// KeepBiggestRegion labels 6-connected components of nonzero voxels and
// zeroes all but the one with the greatest voxel count.
func (v *Vol) KeepBiggestRegion() {
	n := len(v.Data.Values)
	label := make([]int32, n)
	cur := int32(0)
	bestLabel := int32(0)
	bestCount := 0
	stack := make([]int, 0, 1024)

	for seed := 0; seed < n; seed++ {
		if v.Data.Values[seed] == 0 || label[seed] != 0 {
			continue
		}
		cur++
		count := 0
		stack = append(stack[:0], seed)
		label[seed] = cur
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			count++
			x := i / (v.ny * v.nz)
			y := (i / v.nz) % v.ny
			z := i % v.nz
			push := func(xx, yy, zz int) {
				if xx < 0 || yy < 0 || zz < 0 || xx >= v.nx || yy >= v.ny || zz >= v.nz {
					return
				}
				j := v.idx(xx, yy, zz)
				if v.Data.Values[j] != 0 && label[j] == 0 {
					label[j] = cur
					stack = append(stack, j)
				}
			}
			push(x-1, y, z)
			push(x+1, y, z)
			push(x, y-1, z)
			push(x, y+1, z)
			push(x, y, z-1)
			push(x, y, z+1)
		}
		if count > bestCount {
			bestCount = count
			bestLabel = cur
		}
	}
	for i := range v.Data.Values {
		if label[i] != bestLabel {
			v.Data.Values[i] = 0
		}
	}
}
