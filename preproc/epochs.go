// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"math"
	"sort"

	"github.com/ccnlab/esi/markers"
	"gonum.org/v1/gonum/stat"
)

// GfpPeaksMode selects the GFP peak extraction.
type GfpPeaksMode int

const (
	NoGfpPeaks GfpPeaksMode = iota
	GfpPeaksAuto
	GfpPeaksList
)

// BadEpochsMode selects the bad-epoch skipping.
type BadEpochsMode int

const (
	NoBadEpochs BadEpochsMode = iota
	BadEpochsAuto
	BadEpochsList
)

// BadEpochsToleranceDefault is the variance detector threshold in robust
// standard deviations.
const BadEpochsToleranceDefault = 4.0

// badEpochsWindow is the detector window in frames when no sampling
// frequency is known; with a frequency it spans a quarter second.
const badEpochsWindow = 64

// MarkerNameAutoBadEpoch names the automatically detected bad chunks.
const MarkerNameAutoBadEpoch = "BadEpoch"

// MarkerNameAutoMaxGfp names the automatically extracted GFP peaks.
const MarkerNameAutoMaxGfp = "MaxGfp"

// MarkerNameBlock names whole-epoch markers.
const MarkerNameBlock = "Block"

// BadEpochsToMarkers detects artifacted time chunks from the windowed GFP
// power: windows whose mean GFP exceeds the robust center by tolerance
// spreads are marked, and contiguous windows merged.
func BadEpochsToMarkers(data *Maps, tolerance float64) markers.List {
	gfp := data.GFP()
	n := len(gfp)
	if n == 0 {
		return nil
	}
	if tolerance <= 0 {
		tolerance = BadEpochsToleranceDefault
	}
	win := badEpochsWindow
	if data.SamplingFreq > 0 {
		win = int(data.SamplingFreq / 4)
		if win < 8 {
			win = 8
		}
	}
	numWin := (n + win - 1) / win
	means := make([]float64, numWin)
	for w := 0; w < numWin; w++ {
		sum := 0.0
		cnt := 0
		for t := w * win; t < (w+1)*win && t < n; t++ {
			sum += gfp[t]
			cnt++
		}
		means[w] = sum / float64(cnt)
	}
	sorted := append([]float64(nil), means...)
	sort.Float64s(sorted)
	center := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	devs := make([]float64, len(sorted))
	for i, v := range sorted {
		devs[i] = math.Abs(v - center)
	}
	sort.Float64s(devs)
	spread := 1.4826 * stat.Quantile(0.5, stat.Empirical, devs, nil)
	if spread == 0 {
		return nil
	}

	var out markers.List
	for w := 0; w < numWin; w++ {
		if (means[w]-center)/spread <= tolerance {
			continue
		}
		from := int64(w * win)
		to := int64((w+1)*win - 1)
		if to >= int64(n) {
			to = int64(n - 1)
		}
		if len(out) > 0 && from <= out[len(out)-1].To+1 {
			out[len(out)-1].To = to
			continue
		}
		out = append(out, markers.Marker{From: from, To: to,
			Name: MarkerNameAutoBadEpoch, Type: markers.TypeTemp})
	}
	return out
}
