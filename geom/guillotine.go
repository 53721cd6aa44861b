// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"github.com/ccnlab/esi/volume"
	"github.com/goki/mat32"
)

// GuillotinePlane finds an axial cutting plane below the brain that excludes
// the neck, from the per-slice foreground area profile of a head volume:
// going down from the widest axial slice, the cut lands on the narrowing
// where the head tapers into the neck. Returns the transform from volume
// coordinates to the plane frame (plane at z' = 0, head above), and false
// when no narrowing is found below the widest slice.
func GuillotinePlane(v *volume.Vol) (*mat32.Mat4, bool) {
	nx, ny, nz := v.Dims()
	area := make([]int, nz)
	for z := 0; z < nz; z++ {
		n := 0
		for x := 0; x < nx; x++ {
			for y := 0; y < ny; y++ {
				if v.At(x, y, z) > v.Bg {
					n++
				}
			}
		}
		area[z] = n
	}
	// widest slice
	zwide := 0
	for z := 1; z < nz; z++ {
		if area[z] > area[zwide] {
			zwide = z
		}
	}
	if area[zwide] == 0 {
		return nil, false
	}
	// walk down to the local minimum of the area profile
	zcut := -1
	for z := zwide - 1; z > 0; z-- {
		if area[z] == 0 {
			// head fully contained, cut right below it
			zcut = z + 1
			break
		}
		if area[z] <= area[z-1] && area[z] < area[zwide]*3/4 {
			zcut = z
			break
		}
	}
	if zcut < 0 {
		return nil, false
	}
	m := mat32.NewMat4()
	m.SetTranslation(0, 0, -float32(zcut))
	return m, true
}

// KeepTopHeadPoints retains only the points above the guillotine plane,
// i.e. the smooth top part of the head surface the spherization is fitted on.
// Points are relative to center; the transform operates in volume coordinates.
func KeepTopHeadPoints(ps *Points, center mat32.Vec3, volToPlane *mat32.Mat4) {
	out := ps.Pos[:0]
	for _, p := range ps.Pos {
		q := p.Add(center).MulMat4(volToPlane)
		if q.Z > 0 {
			out = append(out, p)
		}
	}
	ps.Pos = out
	ps.Names = nil
}
