// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geom

import (
	"github.com/goki/mat32"
)

// OptimalInverseTranslation returns the translation to apply to all point
// sets (surface, solution points, electrodes) so that they are centered on
// an optimal common "inverse center". The inverse center best centers
// solution points and electrodes relative to the head surface, which keeps
// per-electrode radial scans and the spherization well conditioned.
func OptimalInverseTranslation(surface, solPoints, electrodes *Points) mat32.Vec3 {
	var centers []mat32.Vec3
	for _, ps := range []*Points{surface, solPoints, electrodes} {
		if ps == nil || ps.Len() == 0 {
			continue
		}
		min, max := ps.Bounds()
		centers = append(centers, min.Add(max).MulScalar(0.5))
	}
	if len(centers) == 0 {
		return mat32.Vec3{}
	}
	var sum mat32.Vec3
	for _, c := range centers {
		sum = sum.Add(c)
	}
	return sum.DivScalar(float32(len(centers))).Negate()
}
