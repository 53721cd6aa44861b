// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/markers"
	"github.com/emer/empi/mpi"
	"github.com/goki/mat32"
)

// Downsampling targets of the whole-dataset statistics: the sub-sampled
// concatenation keeps roughly this many maps per consumer.
const (
	DownsamplingTargetSizeGfp    = 10000
	DownsamplingTargetSizeReg    = 5000
	DownsamplingTargetSizeZScore = 10000
)

// BackgroundNormalization selects the standardization source.
type BackgroundNormalization int

const (
	BackgroundNormalizationNone BackgroundNormalization = iota
	BackgroundNormalizationComputingZScore
	BackgroundNormalizationLoadingZScoreFile
)

// Config is the declarative description of one preprocessing run.
type Config struct {
	SpatialFilter geom.SpatialFilterType `desc:"topology-based smoothing over the electrode graph"`
	Electrodes    []mat32.Vec3           `desc:"electrode positions for the spatial filter graph"`

	ComputeESI     bool           `desc:"apply the inverse operator to every map"`
	Inverse        *InverseMatrix `desc:"multi-regularization inverse operator"`
	Regularization Regularization `desc:"fixed level, or AutoGlobal / AutoLocal"`
	VectorialESI   bool           `desc:"keep the 3 components per solution point instead of the norm"`

	MergeComplex bool `desc:"consecutive input files are real / imaginary pairs of a frequency band"`

	GfpNormalize bool `desc:"single multiplicative background GFP factor over all files"`

	BackNorm   BackgroundNormalization `desc:"background standardization source"`
	ZScore     ZScoreType              `desc:"standardization variant"`
	ZScoreFile string                  `desc:"factor file to load with BackgroundNormalizationLoadingZScoreFile"`
	SaveZScore bool                    `desc:"write the computed factors in both orientations"`

	Ranking bool `desc:"replace scalars by their within-map rank"`

	Thresholding bool    `desc:"clip magnitudes below Threshold to 0"`
	Threshold    float64 `desc:"threshold value"`

	Envelope         EnvelopeType `desc:"temporal envelope extraction"`
	EnvelopeDuration float64      `desc:"envelope window in ms"`

	Rois      *Rois     `desc:"optional region averaging"`
	RoiMethod RoiMethod `desc:"region reduction method"`

	Epochs      markers.EpochsType `desc:"writing epochs"`
	EpochFrom   []int64            `desc:"explicit epoch starts"`
	EpochTo     []int64            `desc:"explicit epoch ends"`
	EpochPeriod int64              `desc:"periodic epoch size in frames"`

	GfpPeaks     GfpPeaksMode `desc:"GFP peak extraction"`
	GfpPeaksList string       `desc:"marker names holding listed peaks"`

	BadEpochs          BadEpochsMode `desc:"bad epoch skipping"`
	BadEpochsList      string        `desc:"marker names holding listed bad epochs"`
	BadEpochsTolerance float64       `desc:"variance detector tolerance in robust SD"`

	SamplingFreq float64 `desc:"input sampling frequency in Hz"`

	OutputDir  string `desc:"output directory"`
	FilePrefix string `desc:"optional output file prefix"`
	SaveMain   bool   `def:"true" desc:"write the main output files"`
}

// Defaults sets the standard pipeline options.
func (cf *Config) Defaults() {
	cf.Regularization = DefaultRegularization
	cf.ZScore = ZScorePositiveCenterScaleOffset
	cf.RoiMethod = RoiMean
	cf.BadEpochsTolerance = BadEpochsToleranceDefault
	cf.SaveMain = true
}

// reconcile applies the no-nonsense parameter checks of the pipeline.
func (cf *Config) reconcile() error {
	if cf.SpatialFilter != geom.SpatialFilterNone && len(cf.Electrodes) == 0 {
		cf.SpatialFilter = geom.SpatialFilterNone
	}
	if cf.ComputeESI && cf.Inverse == nil {
		return fmt.Errorf("preproc: ESI requested without an inverse matrix")
	}
	// complex pairs are only merged in source space
	if cf.MergeComplex && !cf.ComputeESI {
		cf.MergeComplex = false
	}
	if !cf.ComputeESI {
		cf.Regularization = RegularizationNone
	}
	// it is useless to GFP-normalize before Z-Scoring
	if cf.GfpNormalize && cf.BackNorm != BackgroundNormalizationNone {
		cf.GfpNormalize = false
	}
	if cf.BackNorm == BackgroundNormalizationLoadingZScoreFile {
		if _, err := os.Stat(cf.ZScoreFile); err != nil {
			cf.BackNorm = BackgroundNormalizationComputingZScore
		}
	}
	if cf.BackNorm != BackgroundNormalizationNone && cf.ZScore.IsZScore() {
		dim := ZScoreDimension3
		if cf.MergeComplex {
			dim = ZScoreDimension6
		}
		cf.ZScore = cf.ZScore.With(ZScoreAllData | dim)
	}
	if cf.SaveZScore && cf.BackNorm == BackgroundNormalizationNone {
		cf.SaveZScore = false
	}
	if cf.Thresholding && cf.Threshold == 0 {
		cf.Thresholding = false
	}
	if cf.Envelope != EnvelopeNone && cf.EnvelopeDuration <= 0 {
		cf.Envelope = EnvelopeNone
	}
	if cf.Rois != nil && cf.RoiMethod != RoiMean && cf.RoiMethod != RoiMedian {
		cf.RoiMethod = RoiMean
	}
	if cf.GfpPeaks == GfpPeaksList && cf.GfpPeaksList == "" {
		cf.GfpPeaks = GfpPeaksAuto
	}
	if cf.BadEpochs == BadEpochsList && cf.BadEpochsList == "" {
		cf.BadEpochs = BadEpochsAuto
		if cf.BadEpochsTolerance < BadEpochsToleranceDefault {
			cf.BadEpochsTolerance = BadEpochsToleranceDefault
		}
	}
	return nil
}

func (cf *Config) timelineDisrupted() bool { return cf.GfpPeaks != NoGfpPeaks }

func (cf *Config) timeCropping() bool {
	return cf.Epochs == markers.EpochsFromList || cf.Epochs == markers.EpochsPeriodic ||
		cf.GfpPeaks != NoGfpPeaks || cf.BadEpochs != NoBadEpochs
}

func (cf *Config) isPreprocessing() bool {
	return cf.SpatialFilter != geom.SpatialFilterNone || cf.ComputeESI ||
		cf.GfpNormalize || cf.BackNorm == BackgroundNormalizationComputingZScore ||
		cf.Ranking || cf.Thresholding || cf.Envelope != EnvelopeNone ||
		cf.Rois != nil || cf.SaveZScore || cf.timeCropping()
}

func (cf *Config) subsamplesAllFiles() bool {
	return cf.GfpNormalize ||
		cf.Regularization == RegularizationAutoGlobal ||
		cf.BackNorm == BackgroundNormalizationComputingZScore
}

// Result reports a pipeline run: the output files grouped per epoch, the
// regularization actually used, and the optional factor files.
type Result struct {
	OutGroups   [][]string     `desc:"output files, one group per epoch"`
	OutDirs     []string       `desc:"output directory per epoch group"`
	UsedReg     Regularization `desc:"regularization actually applied"`
	ZScoreFiles []string       `desc:"saved factor files"`
	NewFiles    bool           `desc:"whether any preprocessing was applied at all"`
}

// Run executes the pipeline over the input files, in order. Real / imaginary
// pairs must alternate when MergeComplex is set.
func (cf *Config) Run(files []string) (*Result, error) {
	if err := cf.reconcile(); err != nil {
		return nil, err
	}
	res := &Result{UsedReg: cf.Regularization}
	if len(files) == 0 {
		return nil, fmt.Errorf("preproc: no input files")
	}
	if !cf.isPreprocessing() {
		// no change is done, pass the inputs through
		res.OutGroups = [][]string{append([]string(nil), files...)}
		res.OutDirs = []string{cf.OutputDir}
		return res, nil
	}
	res.NewFiles = true
	if err := os.MkdirAll(cf.OutputDir, 0o755); err != nil {
		return nil, err
	}

	// sub-sample one concatenated block across all inputs, for the steps
	// needing whole-dataset statistics; separate real / imaginary streams
	var concatFiles []string
	if cf.subsamplesAllFiles() {
		var err error
		concatFiles, err = cf.writeSubsampled(files)
		if err != nil {
			return nil, err
		}
	}

	var zFactors *ZScoreFactors
	gfpNorm := 1.0
	regularization := cf.Regularization

	var esiReal *Maps // pending real part when merging complex pairs
	var infix string

	numExtra := len(concatFiles)
	for fi := -numExtra; fi < len(files); fi++ {
		isTemp := fi < 0
		isFirst := (!cf.MergeComplex && fi == 0) || (cf.MergeComplex && fi <= 1)

		var fname string
		if isTemp {
			fname = concatFiles[fi+numExtra]
		} else {
			fname = files[fi]
		}
		data, err := ReadFile(fname)
		if err != nil {
			return nil, err
		}
		data.SamplingFreq = cf.SamplingFreq
		infix = ""

		inMarkers := ReadMarkersFile(MarkerFileName(fname))

		if cf.SpatialFilter != geom.SpatialFilterNone {
			infix += ".SpatialFilter"
			data.FilterSpatial(cf.SpatialFilter, cf.Electrodes)
		}

		toData := data
		if cf.ComputeESI {
			esi, used, err := cf.Inverse.Apply(data, regularization, cf.VectorialESI)
			if err != nil {
				return nil, err
			}
			// overriding is done only once, on the subsampled file
			if regularization == RegularizationAutoGlobal {
				regularization = used
				res.UsedReg = used
			}
			infix += cf.esiInfix(regularization)

			if cf.MergeComplex && !isTemp {
				if (fi % 2) == 0 {
					esiReal = esi // real part saved, proceed to the imaginary
					continue
				}
				esi = MergeComplex(esiReal, esi)
				esiReal = nil
			}
			toData = esi
		}

		if cf.GfpNormalize {
			infix += ".GfpNorm"
			if isTemp {
				gfpNorm = toData.ComputeGfpNormalization()
			} else {
				toData.ApplyGfpNormalization(gfpNorm)
			}
		}

		if cf.BackNorm != BackgroundNormalizationNone {
			if cf.BackNorm == BackgroundNormalizationComputingZScore && isTemp {
				zFactors = ComputeZScore(toData, cf.ZScore)
			} else if cf.BackNorm == BackgroundNormalizationLoadingZScoreFile && zFactors == nil {
				zFactors, err = ReadZScoreFactors(cf.ZScoreFile)
				if err != nil {
					return nil, err
				}
			}
			if !isTemp && zFactors != nil {
				ApplyZScore(toData, cf.ZScore, zFactors)
			}
			infix += "." + cf.ZScore.Infix()
		}

		if isTemp {
			// the factors are in, clean the concatenated temp file up
			os.Remove(fname)
			os.Remove(MarkerFileName(fname))
			continue
		}

		if cf.Ranking {
			toData.ToRank()
			infix += ".Rank"
		}
		if cf.Thresholding {
			toData.Threshold(cf.Threshold)
			infix += fmt.Sprintf(".Clip%.2f", cf.Threshold)
		}
		if cf.Envelope != EnvelopeNone {
			toData.Envelope(cf.Envelope, cf.EnvelopeDuration)
			infix += fmt.Sprintf(".Envelope%d", int(cf.EnvelopeDuration))
		}
		if cf.Rois != nil {
			rmaps, err := cf.Rois.Average(toData, cf.RoiMethod)
			if err != nil {
				return nil, err
			}
			toData = rmaps
			// always return ranked and / or thresholded data after reduction
			if cf.Ranking {
				toData.ToRank()
			}
			if cf.Thresholding {
				toData.Threshold(cf.Threshold)
			}
			infix += fmt.Sprintf(".ROIS%d", cf.Rois.NumRois())
		}

		if err := cf.writeEpochs(res, toData, fname, infix, inMarkers, isFirst); err != nil {
			return nil, err
		}
	}

	if cf.SaveZScore && zFactors != nil {
		if err := cf.saveZScoreFactors(res, files[0], infix, zFactors); err != nil {
			return nil, err
		}
	}
	mpi.Printf("preproc: %d files through [%s]\n", len(files), strings.TrimPrefix(infix, "."))
	return res, nil
}

// writeEpochs runs the epoch / GFP peaks / bad epochs selection and writes
// one output file per epoch.
func (cf *Config) writeEpochs(res *Result, data *Maps, inFile, infix string,
	inMarkers markers.List, isFirst bool) error {

	maxTF := int64(data.NumTF()) - 1

	epochList := markers.EpochsToMarkers(cf.Epochs, cf.EpochFrom, cf.EpochTo, 0, maxTF, cf.EpochPeriod)

	var gfp []float64
	if cf.GfpPeaks == GfpPeaksAuto {
		gfp = data.GFP()
	}

	var badList markers.List
	switch cf.BadEpochs {
	case BadEpochsAuto:
		badList = BadEpochsToMarkers(data, cf.BadEpochsTolerance)
	case BadEpochsList:
		badList = markers.ToTimeChunks(inMarkers, cf.BadEpochsList, 0, maxTF, MarkerNameAutoBadEpoch)
	}

	numEpochs := len(epochList)
	if numEpochs == 0 {
		numEpochs = 1
	}
	for epoch := 0; epoch < numEpochs; epoch++ {
		fromTF, toTF := int64(0), int64(0)
		if epoch < len(epochList) {
			fromTF = epochList[epoch].From
			toTF = epochList[epoch].To
		}

		var good markers.List
		switch cf.GfpPeaks {
		case NoGfpPeaks:
			good = markers.List{{From: fromTF, To: toTF, Name: MarkerNameBlock, Type: markers.TypeTemp}}
		case GfpPeaksAuto:
			good = markers.MaxTrackToMarkers(gfp, fromTF, toTF, true, MarkerNameAutoMaxGfp)
		case GfpPeaksList:
			good = markers.List{}
			good.Insert(inMarkers, cf.GfpPeaksList)
			good.Keep(fromTF, toTF)
		}

		if cf.BadEpochs != NoBadEpochs {
			if cf.GfpPeaks == NoGfpPeaks {
				good.Clip(badList)
			} else {
				good.Remove(badList)
			}
		}
		good.SortAndClean()

		outFile := cf.outputName(inFile, infix, fromTF, toTF)

		if cf.SaveMain {
			writing := data
			if cf.timelineDisrupted() {
				writing.SamplingFreq = 0
			}
			if err := writing.WriteEpochs(outFile, good); err != nil {
				return err
			}
			// markers can be duplicated only if the timeline is intact
			if !cf.timelineDisrupted() && !cf.timeCropping() && len(inMarkers) > 0 {
				if err := WriteMarkersFile(MarkerFileName(outFile), inMarkers); err != nil {
					return err
				}
			}
		}

		if isFirst {
			dir := cf.OutputDir
			if cf.Epochs == markers.EpochsFromList || cf.Epochs == markers.EpochsPeriodic {
				dir = filepath.Join(cf.OutputDir, fmt.Sprintf("%d_%d", fromTF, toTF))
			}
			res.OutDirs = append(res.OutDirs, dir)
			res.OutGroups = append(res.OutGroups, nil)
		}
		if epoch < len(res.OutGroups) {
			res.OutGroups[epoch] = append(res.OutGroups[epoch], outFile)
		}
	}
	return nil
}

// outputName derives the output file name by prefixing and infixing each
// applied step.
func (cf *Config) outputName(inFile, infix string, fromTF, toTF int64) string {
	base := filepath.Base(inFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSuffix(base, ".sef")
	base = strings.TrimSuffix(base, ".ris")
	if cf.MergeComplex {
		base = strings.ReplaceAll(base, ".Real", "")
		base = strings.ReplaceAll(base, ".Imag", "")
	}
	name := cf.FilePrefix + base + infix
	if cf.Epochs == markers.EpochsFromList || cf.Epochs == markers.EpochsPeriodic {
		name += fmt.Sprintf(".%d_%d", fromTF, toTF)
	}
	if cf.GfpPeaks != NoGfpPeaks {
		name += ".GfpMax"
	}
	if cf.BadEpochs != NoBadEpochs {
		name += ".SkipBad"
	}
	if cf.ComputeESI {
		name += ".ris.tsv"
	} else {
		name += ".sef.tsv"
	}
	return filepath.Join(cf.OutputDir, name)
}

func (cf *Config) esiInfix(reg Regularization) string {
	short := "S"
	if cf.VectorialESI {
		short = "V"
	}
	return fmt.Sprintf(".ESI-%s-%d-%s%s", cf.Inverse.Name, cf.Inverse.NumSolPoints(),
		reg.String(), short)
}

// writeSubsampled concatenates one downsampled block across all inputs and
// writes it as temp file(s), separate real and imaginary streams when
// merging complex pairs.
func (cf *Config) writeSubsampled(files []string) ([]string, error) {
	target := 0
	if cf.GfpNormalize && target < DownsamplingTargetSizeGfp {
		target = DownsamplingTargetSizeGfp
	}
	if cf.Regularization == RegularizationAutoGlobal && target < DownsamplingTargetSizeReg {
		target = DownsamplingTargetSizeReg
	}
	if cf.BackNorm == BackgroundNormalizationComputingZScore && target < DownsamplingTargetSizeZScore {
		target = DownsamplingTargetSizeZScore
	}

	numStreams := 1
	if cf.MergeComplex {
		numStreams = 2
	}
	subs := make([]*Maps, numStreams)

	// first pass: total length, to derive the step
	totalTF := 0
	for _, f := range files {
		m, err := ReadFile(f)
		if err != nil {
			return nil, err
		}
		totalTF += m.NumTF()
	}
	step := totalTF / numStreams / target
	if step < 1 {
		step = 1
	}

	for fi, f := range files {
		m, err := ReadFile(f)
		if err != nil {
			return nil, err
		}
		stream := 0
		if cf.MergeComplex && fi%2 == 1 {
			stream = 1
		}
		if subs[stream] == nil {
			subs[stream] = NewMaps(0, m.NumCh())
			subs[stream].Chans = m.Chans
		}
		for t := 0; t < m.NumTF(); t += step {
			subs[stream].Vals = append(subs[stream].Vals, m.Vals[t])
		}
	}

	rnd := randomString(6)
	base := filepath.Base(files[0])
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSuffix(base, ".sef")
	var out []string
	for si, sm := range subs {
		name := cf.FilePrefix + base + ".Subsampled." + rnd
		if cf.MergeComplex {
			if si == 0 {
				name += ".Real"
			} else {
				name += ".Imag"
			}
		}
		name += ".sef.tsv"
		fname := filepath.Join(cf.OutputDir, name)
		if err := sm.WriteFile(fname); err != nil {
			return nil, err
		}
		out = append(out, fname)
	}
	return out, nil
}

const randomChars = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randomChars[rand.Intn(len(randomChars))]
	}
	return string(b)
}
