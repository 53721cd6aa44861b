// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ZScoreType composes one processing variant with options, as bit flags.
// EEG should use ZScoreSignedCenterScale; the ESI default is
// ZScorePositiveCenterScaleOffset.
type ZScoreType int

const (
	ZScoreNone ZScoreType = 0

	// positive data variants
	ZScorePositiveCenterScale             ZScoreType = 0x000001 // regular Z-Score, signed results
	ZScorePositiveCenterScaleOffset       ZScoreType = 0x000002 // then offset to be > 0, better for segmentation
	ZScorePositiveCenterScaleAbs          ZScoreType = 0x000004 // then absolute value
	ZScorePositiveCenterScalePlus         ZScoreType = 0x000008 // then keeping only Z > 0
	ZScorePositiveNocenterScale           ZScoreType = 0x000010 // scale only, from 0, using all data variance
	ZScorePositiveCenterScaleInvertOffset ZScoreType = 0x000020 // invert + offset, emphasizing the mins
	zScorePositiveMask                    ZScoreType = 0x00003F

	// vectorial data variants
	ZScoreVectorialCenterVectorsCenterScale ZScoreType = 0x000100 // second best choice
	ZScoreVectorialCenterVectorsScale       ZScoreType = 0x000200 // last choice
	ZScoreVectorialCenterScaleByComponent   ZScoreType = 0x000400 // best for segmentation and display
	zScoreVectorialMask                     ZScoreType = 0x000700

	// signed data variant
	ZScoreSignedCenterScale ZScoreType = 0x001000
	zScoreSignedMask        ZScoreType = 0x001000

	zScoreProcessingMask ZScoreType = zScorePositiveMask | zScoreVectorialMask | zScoreSignedMask

	// options
	ZScoreMaxData    ZScoreType = 0x010000 // scan only the local extrema
	ZScoreAllData    ZScoreType = 0x020000 // scan all data (default)
	ZScoreDimension3 ZScoreType = 0x040000 // positive data is a norm of 3 components
	ZScoreDimension6 ZScoreType = 0x080000 // norm of 6 components (complex ESI)
	zScoreOptionsMask ZScoreType = 0x0F0000
)

// Processing returns the processing part of the flags.
func (z ZScoreType) Processing() ZScoreType { return z & zScoreProcessingMask }

// Options returns the options part of the flags.
func (z ZScoreType) Options() ZScoreType { return z & zScoreOptionsMask }

// With composes the receiver's processing with the given options.
func (z ZScoreType) With(opts ZScoreType) ZScoreType {
	return z.Processing() | opts.Options()
}

// IsZScore reports whether any processing is requested.
func (z ZScoreType) IsZScore() bool { return z.Processing() != ZScoreNone }

// IsVectorial reports whether the variant operates on 3-component vectors.
func (z ZScoreType) IsVectorial() bool { return z&zScoreVectorialMask != 0 }

// IsSignedOutput reports whether the result is signed, which changes the
// output data kind to scalar.
func (z ZScoreType) IsSignedOutput() bool {
	p := z.Processing()
	return p == ZScorePositiveCenterScale || p == ZScoreSignedCenterScale
}

// Infix returns the file-name infix of the variant.
func (z ZScoreType) Infix() string {
	switch z.Processing() {
	case ZScorePositiveCenterScale:
		return "Z"
	case ZScorePositiveCenterScaleOffset:
		return "ZPos"
	case ZScorePositiveCenterScaleAbs:
		return "ZAbs"
	case ZScorePositiveCenterScalePlus:
		return "ZPlus"
	case ZScorePositiveNocenterScale:
		return "ZScale"
	case ZScorePositiveCenterScaleInvertOffset:
		return "ZInv"
	case ZScoreVectorialCenterVectorsCenterScale:
		return "ZVect"
	case ZScoreVectorialCenterVectorsScale:
		return "ZVectScale"
	case ZScoreVectorialCenterScaleByComponent:
		return "ZComp"
	case ZScoreSignedCenterScale:
		return "ZScore"
	}
	return ""
}

// FactorFileInfix names the saved factor files.
func (z ZScoreType) FactorFileInfix() string { return z.Infix() + "Factors" }

// MinSDToKeep is how many SD of positive data the offset variants keep by
// shifting the Z-Score; 3 is a good compromise for the vast majority of
// cases.
const MinSDToKeep = 3

// Factor column layout: per channel, center and spread; vectorial
// by-component uses 3 centers and 3 spreads.
const (
	ZValCenter = 0
	ZValSpread = 1
	NumZVals   = 2
	NumZMatrix = 9
)

// ZScoreFactors holds the per-channel standardization factors computed on a
// background sample: numChannels x NumZMatrix, with the scalar variants
// using the first two columns.
type ZScoreFactors struct {
	Vals [][]float64
}

// robustCenterSpread estimates the center and spread of a background sample
// as median and scaled MAD, which ignores the activity outliers.
func robustCenterSpread(vals []float64) (center, spread float64) {
	if len(vals) == 0 {
		return 0, 1
	}
	sort.Float64s(vals)
	center = stat.Quantile(0.5, stat.Empirical, vals, nil)
	devs := make([]float64, len(vals))
	for i, v := range vals {
		devs[i] = math.Abs(v - center)
	}
	sort.Float64s(devs)
	spread = 1.4826 * stat.Quantile(0.5, stat.Empirical, devs, nil)
	if spread == 0 {
		spread = 1
	}
	return
}

// ComputeZScore computes the standardization factors of the variant on the
// given background block (typically the sub-sampled concatenation of all
// files).
func ComputeZScore(data *Maps, z ZScoreType) *ZScoreFactors {
	numCh := data.NumCh()
	if z.IsVectorial() {
		numCh /= 3
	}
	zf := &ZScoreFactors{Vals: make([][]float64, numCh)}
	for ci := range zf.Vals {
		zf.Vals[ci] = make([]float64, NumZMatrix)
	}

	switch {
	case z.IsVectorial() && z.Processing() == ZScoreVectorialCenterScaleByComponent:
		for ci := 0; ci < numCh; ci++ {
			for c := 0; c < 3; c++ {
				vals := make([]float64, data.NumTF())
				for t := range data.Vals {
					vals[t] = float64(data.Vals[t][3*ci+c])
				}
				center, spread := robustCenterSpread(vals)
				zf.Vals[ci][2*c] = center
				zf.Vals[ci][2*c+1] = spread
			}
		}
	case z.IsVectorial():
		// center vectors then scale by the spread of the norms
		for ci := 0; ci < numCh; ci++ {
			var cx, cy, cz float64
			for t := range data.Vals {
				cx += float64(data.Vals[t][3*ci])
				cy += float64(data.Vals[t][3*ci+1])
				cz += float64(data.Vals[t][3*ci+2])
			}
			n := float64(data.NumTF())
			cx, cy, cz = cx/n, cy/n, cz/n
			norms := make([]float64, data.NumTF())
			for t := range data.Vals {
				x := float64(data.Vals[t][3*ci]) - cx
				y := float64(data.Vals[t][3*ci+1]) - cy
				zc := float64(data.Vals[t][3*ci+2]) - cz
				norms[t] = math.Sqrt(x*x + y*y + zc*zc)
			}
			center, spread := robustCenterSpread(norms)
			zf.Vals[ci][0] = cx
			zf.Vals[ci][1] = cy
			zf.Vals[ci][2] = cz
			zf.Vals[ci][3] = center
			zf.Vals[ci][4] = spread
		}
	case z.Processing() == ZScorePositiveNocenterScale:
		for ci := 0; ci < numCh; ci++ {
			ss := 0.0
			for t := range data.Vals {
				v := float64(data.Vals[t][ci])
				ss += v * v
			}
			spread := math.Sqrt(ss / float64(data.NumTF()))
			if spread == 0 {
				spread = 1
			}
			zf.Vals[ci][ZValCenter] = 0
			zf.Vals[ci][ZValSpread] = spread
		}
	default:
		for ci := 0; ci < numCh; ci++ {
			vals := make([]float64, data.NumTF())
			for t := range data.Vals {
				vals[t] = float64(data.Vals[t][ci])
			}
			center, spread := robustCenterSpread(vals)
			zf.Vals[ci][ZValCenter] = center
			zf.Vals[ci][ZValSpread] = spread
		}
	}
	return zf
}

// ApplyZScore standardizes data in place with the given factors. Signed
// variants change the block kind to scalar.
func ApplyZScore(data *Maps, z ZScoreType, zf *ZScoreFactors) {
	switch {
	case z.IsVectorial() && z.Processing() == ZScoreVectorialCenterScaleByComponent:
		for t := range data.Vals {
			for ci := range zf.Vals {
				for c := 0; c < 3; c++ {
					center := zf.Vals[ci][2*c]
					spread := zf.Vals[ci][2*c+1]
					v := float64(data.Vals[t][3*ci+c])
					data.Vals[t][3*ci+c] = float32((v - center) / spread)
				}
			}
		}
	case z.IsVectorial():
		centerNorms := z.Processing() == ZScoreVectorialCenterVectorsCenterScale
		for t := range data.Vals {
			for ci := range zf.Vals {
				x := float64(data.Vals[t][3*ci]) - zf.Vals[ci][0]
				y := float64(data.Vals[t][3*ci+1]) - zf.Vals[ci][1]
				zc := float64(data.Vals[t][3*ci+2]) - zf.Vals[ci][2]
				norm := math.Sqrt(x*x + y*y + zc*zc)
				zn := norm
				if centerNorms {
					zn = norm - zf.Vals[ci][3]
				}
				zn /= zf.Vals[ci][4]
				scale := 0.0
				if norm > 0 {
					scale = zn / norm
				}
				data.Vals[t][3*ci] = float32(x * scale)
				data.Vals[t][3*ci+1] = float32(y * scale)
				data.Vals[t][3*ci+2] = float32(zc * scale)
			}
		}
	default:
		for t := range data.Vals {
			for ci := range zf.Vals {
				center := zf.Vals[ci][ZValCenter]
				spread := zf.Vals[ci][ZValSpread]
				zv := (float64(data.Vals[t][ci]) - center) / spread
				switch z.Processing() {
				case ZScorePositiveCenterScaleOffset:
					zv += MinSDToKeep
					if zv < 0 {
						zv = 0
					}
				case ZScorePositiveCenterScaleAbs:
					zv = math.Abs(zv)
				case ZScorePositiveCenterScalePlus:
					if zv < 0 {
						zv = 0
					}
				case ZScorePositiveCenterScaleInvertOffset:
					zv = MinSDToKeep - zv
					if zv < 0 {
						zv = 0
					}
				}
				data.Vals[t][ci] = float32(zv)
			}
		}
	}
	if z.IsSignedOutput() {
		data.Kind = KindScalar
	}
}
