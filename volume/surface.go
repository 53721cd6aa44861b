// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package volume

import (
	"github.com/goki/mat32"
)

// Resurface moves p (expressed relative to center, in voxel coordinates)
// along the center->p ray onto the closest surface of the volume, i.e. the
// outermost crossing from background to foreground. Returns the surface
// point relative to center, and false when the ray never meets the volume.
func (v *Vol) Resurface(p, center mat32.Vec3, bg float32) (mat32.Vec3, bool) {
	norm := p.Length()
	if norm == 0 {
		return p, false
	}
	dir := p.DivScalar(norm)
	rmax := mat32.Sqrt(float32(v.nx*v.nx + v.ny*v.ny + v.nz*v.nz))
	// inward scan at voxel resolution
	r := rmax
	for ; r >= 0; r-- {
		q := center.Add(dir.MulScalar(r))
		if v.Sample(q.X, q.Y, q.Z, Linear) > bg {
			break
		}
	}
	if r < 0 {
		return p, false
	}
	// back out at sub-voxel resolution until background again
	for ; r < rmax; r += 0.1 {
		q := center.Add(dir.MulScalar(r + 0.1))
		if v.Sample(q.X, q.Y, q.Z, Linear) <= bg {
			break
		}
	}
	return dir.MulScalar(r + 0.05), true
}

// SurfacePoints extracts foreground voxels having at least one background
// 6-neighbor, as points relative to center. step subsamples the scan on each
// axis (1 = every voxel).
func (v *Vol) SurfacePoints(center mat32.Vec3, step int) []mat32.Vec3 {
	if step < 1 {
		step = 1
	}
	var pts []mat32.Vec3
	for x := 0; x < v.nx; x += step {
		for y := 0; y < v.ny; y += step {
			for z := 0; z < v.nz; z += step {
				if v.At(x, y, z) <= v.Bg {
					continue
				}
				if v.At(x-1, y, z) > v.Bg && v.At(x+1, y, z) > v.Bg &&
					v.At(x, y-1, z) > v.Bg && v.At(x, y+1, z) > v.Bg &&
					v.At(x, y, z-1) > v.Bg && v.At(x, y, z+1) > v.Bg {
					continue
				}
				pts = append(pts, mat32.Vec3{X: float32(x), Y: float32(y), Z: float32(z)}.Sub(center))
			}
		}
	}
	return pts
}

// StripMethod selects the skull stripping variant.
type StripMethod int

const (
	// Strip1B is the iterative shape-constrained method used by default.
	Strip1B StripMethod = iota
)

// SkullStrip returns a brain-only binary mask computed from a full head
// volume by an iterative shape-constrained pipeline: threshold at the
// background, deep erosion to disconnect scalp from brain, retention of the
// biggest connected region, then recovery of the eroded margin. The result
// is deterministic for identical inputs.
func (v *Vol) SkullStrip(method StripMethod, voxelSize float32, isTemplate bool) *Vol {
	if voxelSize <= 0 {
		voxelSize = v.MeanVoxSize()
	}
	mask := v.Clone()
	bg := mask.Bg
	if bg == 0 {
		bg = mask.EstimateBackground()
	}
	// templates are already clean, a lighter threshold suffices
	if isTemplate {
		bg *= 0.75
	}
	mask.Binarize(bg, 1)

	// erosion diameter scaled to physical size: ~9mm disconnects scalp bridges
	erode := 9.0 / voxelSize
	if erode < 3 {
		erode = 3
	}
	mask.Morphology(Erode, erode, 0)
	mask.KeepBiggestRegion()
	mask.Morphology(Dilate, erode, 0)
	mask.Morphology(Close, 2, 0)
	mask.Morphology(Relax, 1, 1)
	mask.Binarize(0.5, 1)
	mask.Bg = 0
	return mask
}
