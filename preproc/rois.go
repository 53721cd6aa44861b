// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"fmt"
	"sort"
)

// RoiMethod selects how maps are reduced over each region.
type RoiMethod int

const (
	RoiMean RoiMethod = iota
	RoiMedian
)

// Rois groups channel indices under names for region averaging.
type Rois struct {
	Name    string   `desc:"set name"`
	Names   []string `desc:"one name per region"`
	Indices [][]int  `desc:"channel indices of each region"`
	Dim     int      `desc:"dimension the indices refer to (electrodes or solution points)"`
}

// NumRois returns the number of regions.
func (ro *Rois) NumRois() int { return len(ro.Indices) }

// Validate checks the indices against the dimension.
func (ro *Rois) Validate() error {
	for ri, idx := range ro.Indices {
		for _, i := range idx {
			if i < 0 || i >= ro.Dim {
				return fmt.Errorf("preproc: roi %d index %d out of dimension %d", ri, i, ro.Dim)
			}
		}
	}
	return nil
}

// Average reduces each map over the regions; the output dimension becomes
// the number of regions. ROIs do not compute on vectorial data.
func (ro *Rois) Average(data *Maps, method RoiMethod) (*Maps, error) {
	if data.Kind == KindVector {
		return nil, fmt.Errorf("preproc: rois cannot reduce vectorial data")
	}
	if ro.Dim != data.NumCh() {
		return nil, fmt.Errorf("preproc: rois dimension %d does not fit data channels %d",
			ro.Dim, data.NumCh())
	}
	out := NewMaps(data.NumTF(), ro.NumRois())
	out.Chans = append([]string(nil), ro.Names...)
	out.SamplingFreq = data.SamplingFreq
	out.Kind = data.Kind
	for t := range data.Vals {
		for ri, idx := range ro.Indices {
			if len(idx) == 0 {
				continue
			}
			switch method {
			case RoiMedian:
				vals := make([]float64, 0, len(idx))
				for _, ci := range idx {
					vals = append(vals, float64(data.Vals[t][ci]))
				}
				sort.Float64s(vals)
				mid := len(vals) / 2
				med := vals[mid]
				if len(vals)%2 == 0 {
					med = (vals[mid-1] + vals[mid]) / 2
				}
				out.Vals[t][ri] = float32(med)
			default:
				sum := 0.0
				for _, ci := range idx {
					sum += float64(data.Vals[t][ci])
				}
				out.Vals[t][ri] = float32(sum / float64(len(idx)))
			}
		}
	}
	return out, nil
}
