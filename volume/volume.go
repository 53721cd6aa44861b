// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package volume provides dense 3D voxel volumes for head MRI data,
// with continuous sampling, masking, morphology and surface extraction.
package volume

import (
	"fmt"
	"math"

	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
)

// Interp selects the continuous sampling method for Sample.
type Interp int

const (
	// Nearest takes the value of the nearest voxel -- required for label volumes,
	// where interpolating between integer codes is meaningless.
	Nearest Interp = iota

	// Linear is tri-linear interpolation over the 8 surrounding voxels.
	Linear

	// CubicHermite is a separable Catmull-Rom spline over the 4x4x4 neighborhood.
	// Overshoot is clamped to the local min / max when ClampOvershoot is set.
	CubicHermite
)

// Vol is a dense 3D array of float32 voxels with anatomical metadata.
// Voxels are stored in an etensor with shape {X, Y, Z}.
type Vol struct {
	Data    etensor.Float32 `desc:"voxel values, shape X x Y x Z"`
	VoxSize mat32.Vec3      `desc:"voxel size along each axis, in mm"`
	Origin  mat32.Vec3      `desc:"voxel index of the anatomical origin"`
	Bg      float32         `desc:"background value estimate -- voxels at or below are outside the head"`
	Orient  string          `desc:"orientation code, e.g. RAS"`

	// ClampOvershoot bounds CubicHermite samples to the local data range,
	// preventing ringing on hard intensity edges.
	ClampOvershoot bool

	nx, ny, nz int
}

// New returns a zeroed volume of the given dimensions, with unit voxels.
func New(nx, ny, nz int) *Vol {
	v := &Vol{}
	v.SetShape(nx, ny, nz)
	v.VoxSize = mat32.Vec3{X: 1, Y: 1, Z: 1}
	return v
}

// SetShape (re)allocates voxel storage for the given dimensions.
func (v *Vol) SetShape(nx, ny, nz int) {
	v.Data.SetShape([]int{nx, ny, nz}, nil, []string{"X", "Y", "Z"})
	v.nx, v.ny, v.nz = nx, ny, nz
}

// Dims returns the three voxel dimensions.
func (v *Vol) Dims() (nx, ny, nz int) { return v.nx, v.ny, v.nz }

// Clone returns a deep copy sharing no storage with the receiver.
func (v *Vol) Clone() *Vol {
	nv := New(v.nx, v.ny, v.nz)
	copy(nv.Data.Values, v.Data.Values)
	nv.VoxSize = v.VoxSize
	nv.Origin = v.Origin
	nv.Bg = v.Bg
	nv.Orient = v.Orient
	nv.ClampOvershoot = v.ClampOvershoot
	return nv
}

// Validate reports invalid geometry before any processing is attempted.
func (v *Vol) Validate() error {
	if v.nx <= 0 || v.ny <= 0 || v.nz <= 0 {
		return fmt.Errorf("volume: null extents %d x %d x %d", v.nx, v.ny, v.nz)
	}
	if v.VoxSize.X <= 0 || v.VoxSize.Y <= 0 || v.VoxSize.Z <= 0 {
		return fmt.Errorf("volume: non-positive voxel size %v", v.VoxSize)
	}
	return nil
}

func (v *Vol) idx(x, y, z int) int { return (x*v.ny+y)*v.nz + z }

// At returns the voxel value at integer coordinates, 0 outside the volume.
func (v *Vol) At(x, y, z int) float32 {
	if x < 0 || y < 0 || z < 0 || x >= v.nx || y >= v.ny || z >= v.nz {
		return 0
	}
	return v.Data.Values[v.idx(x, y, z)]
}

// Set stores a voxel value, ignoring out-of-range coordinates.
func (v *Vol) Set(x, y, z int, val float32) {
	if x < 0 || y < 0 || z < 0 || x >= v.nx || y >= v.ny || z >= v.nz {
		return
	}
	v.Data.Values[v.idx(x, y, z)] = val
}

// MeanVoxSize is the average voxel edge length.
func (v *Vol) MeanVoxSize() float32 {
	return (v.VoxSize.X + v.VoxSize.Y + v.VoxSize.Z) / 3
}

// IsInside reports whether the continuous coordinates fall inside the array.
func (v *Vol) IsInside(x, y, z float32) bool {
	return x >= 0 && y >= 0 && z >= 0 &&
		x < float32(v.nx) && y < float32(v.ny) && z < float32(v.nz)
}

// Binarize sets voxels strictly above threshold to binVal and all others to 0.
func (v *Vol) Binarize(threshold, binVal float32) {
	for i, val := range v.Data.Values {
		if val > threshold {
			v.Data.Values[i] = binVal
		} else {
			v.Data.Values[i] = 0
		}
	}
}

// ThresholdBinarize sets voxels within [min..max] to binVal, others to 0.
// Used to cut a label range out of a tissues volume.
func (v *Vol) ThresholdBinarize(min, max, binVal float32) {
	for i, val := range v.Data.Values {
		if val >= min && val <= max {
			v.Data.Values[i] = binVal
		} else {
			v.Data.Values[i] = 0
		}
	}
}

// EstimateBackground computes a background estimate, mean plus two standard
// deviations of the voxels on the four x and y faces of the array, where no
// anatomy is expected, and stores it in Bg.
func (v *Vol) EstimateBackground() float32 {
	var sum, sumsq float64
	n := 0
	add := func(x, y, z int) {
		val := float64(v.Data.Values[v.idx(x, y, z)])
		sum += val
		sumsq += val * val
		n++
	}
	for y := 0; y < v.ny; y++ {
		for z := 0; z < v.nz; z++ {
			add(0, y, z)
			add(v.nx-1, y, z)
		}
	}
	for x := 0; x < v.nx; x++ {
		for z := 0; z < v.nz; z++ {
			add(x, 0, z)
			add(x, v.ny-1, z)
		}
	}
	if n == 0 {
		v.Bg = 0
		return 0
	}
	mean := sum / float64(n)
	sd := sumsq/float64(n) - mean*mean
	if sd > 0 {
		sd = math.Sqrt(sd)
	} else {
		sd = 0
	}
	v.Bg = float32(mean + 2*sd)
	return v.Bg
}

// Sample returns a continuous sample at sub-voxel coordinates using the given
// interpolation. Coordinates outside the volume return 0.
func (v *Vol) Sample(x, y, z float32, it Interp) float32 {
	switch it {
	case Nearest:
		return v.At(int(x+0.5), int(y+0.5), int(z+0.5))
	case Linear:
		return v.sampleLinear(x, y, z)
	default:
		return v.sampleHermite(x, y, z)
	}
}

func (v *Vol) sampleLinear(x, y, z float32) float32 {
	x0, y0, z0 := int(mat32.Floor(x)), int(mat32.Floor(y)), int(mat32.Floor(z))
	fx, fy, fz := x-float32(x0), y-float32(y0), z-float32(z0)
	var acc float32
	for dx := 0; dx <= 1; dx++ {
		wx := fx
		if dx == 0 {
			wx = 1 - fx
		}
		for dy := 0; dy <= 1; dy++ {
			wy := fy
			if dy == 0 {
				wy = 1 - fy
			}
			for dz := 0; dz <= 1; dz++ {
				wz := fz
				if dz == 0 {
					wz = 1 - fz
				}
				acc += wx * wy * wz * v.At(x0+dx, y0+dy, z0+dz)
			}
		}
	}
	return acc
}

// catmullRom evaluates the cubic Hermite spline through p1, p2 at fraction t,
// with p0, p3 as outer support points.
func catmullRom(p0, p1, p2, p3, t float32) float32 {
	a := 2*p1 + t*((p2-p0)+t*((2*p0-5*p1+4*p2-p3)+t*(3*(p1-p2)+p3-p0)))
	return 0.5 * a
}

func (v *Vol) sampleHermite(x, y, z float32) float32 {
	x1, y1, z1 := int(mat32.Floor(x)), int(mat32.Floor(y)), int(mat32.Floor(z))
	fx, fy, fz := x-float32(x1), y-float32(y1), z-float32(z1)

	var zline, yline, xline [4]float32
	lo := float32(math.MaxFloat32)
	hi := float32(-math.MaxFloat32)
	for dx := 0; dx < 4; dx++ {
		for dy := 0; dy < 4; dy++ {
			for dz := 0; dz < 4; dz++ {
				val := v.At(x1+dx-1, y1+dy-1, z1+dz-1)
				zline[dz] = val
				if val < lo {
					lo = val
				}
				if val > hi {
					hi = val
				}
			}
			yline[dy] = catmullRom(zline[0], zline[1], zline[2], zline[3], fz)
		}
		xline[dx] = catmullRom(yline[0], yline[1], yline[2], yline[3], fy)
	}
	res := catmullRom(xline[0], xline[1], xline[2], xline[3], fx)
	if v.ClampOvershoot {
		if res < lo {
			res = lo
		}
		if res > hi {
			res = hi
		}
	}
	return res
}
