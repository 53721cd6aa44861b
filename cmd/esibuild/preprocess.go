// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/markers"
	"github.com/ccnlab/esi/preproc"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

func preprocessCmd() *cobra.Command {
	var (
		xyzFile       string
		spatialFilter string
		inverseFile   string
		regularize    string
		vectorial     bool
		mergeComplex  bool
		gfpNormalize  bool
		zscoreName    string
		zscoreFile    string
		saveZScore    bool
		ranking       bool
		threshold     float64
		envelopeName  string
		envelopeMs    float64
		epochsSpec    string
		gfpPeaks      string
		badEpochs     string
		badTolerance  float64
		samplingFreq  float64
		outDir        string
		prefix        string
	)
	cmd := &cobra.Command{
		Use:   "preprocess [files...]",
		Short: "Run the ESI preprocessing pipeline over EEG files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf := &preproc.Config{}
			cf.Defaults()
			cf.OutputDir = outDir
			cf.FilePrefix = prefix
			cf.SamplingFreq = samplingFreq
			cf.MergeComplex = mergeComplex
			cf.GfpNormalize = gfpNormalize
			cf.Ranking = ranking
			cf.VectorialESI = vectorial
			if threshold != 0 {
				cf.Thresholding = true
				cf.Threshold = threshold
			}

			switch strings.ToLower(spatialFilter) {
			case "", "none":
			case "outlier":
				cf.SpatialFilter = geom.SpatialFilterOutlier
			case "interseptile":
				cf.SpatialFilter = geom.SpatialFilterInterseptileWeightedMean
			default:
				return &exitErr{ExitInvalidInputs,
					fmt.Errorf("unknown spatial filter %q", spatialFilter)}
			}
			if cf.SpatialFilter != geom.SpatialFilterNone {
				if xyzFile == "" {
					return &exitErr{ExitInvalidInputs,
						fmt.Errorf("--xyz required with a spatial filter")}
				}
				els, err := loadPoints(xyzFile)
				if err != nil {
					return &exitErr{ExitInvalidInputs, err}
				}
				cf.Electrodes = els.Pos
			}

			if inverseFile != "" {
				inv, err := loadInverse(inverseFile)
				if err != nil {
					return &exitErr{ExitInvalidInputs, err}
				}
				cf.ComputeESI = true
				cf.Inverse = inv
				switch strings.ToUpper(regularize) {
				case "G":
					cf.Regularization = preproc.RegularizationAutoGlobal
				case "L":
					cf.Regularization = preproc.RegularizationAutoLocal
				case "", "N":
					cf.Regularization = preproc.DefaultRegularization
				default:
					n, err := strconv.Atoi(regularize)
					if err != nil {
						return &exitErr{ExitInvalidInputs,
							fmt.Errorf("bad regularization %q", regularize)}
					}
					cf.Regularization = preproc.Regularization(n)
				}
			}

			switch strings.ToLower(zscoreName) {
			case "", "none":
			case "z":
				cf.BackNorm = preproc.BackgroundNormalizationComputingZScore
				cf.ZScore = preproc.ZScorePositiveCenterScale
			case "zpos":
				cf.BackNorm = preproc.BackgroundNormalizationComputingZScore
				cf.ZScore = preproc.ZScorePositiveCenterScaleOffset
			case "zscore":
				cf.BackNorm = preproc.BackgroundNormalizationComputingZScore
				cf.ZScore = preproc.ZScoreSignedCenterScale
			case "zcomp":
				cf.BackNorm = preproc.BackgroundNormalizationComputingZScore
				cf.ZScore = preproc.ZScoreVectorialCenterScaleByComponent
			default:
				return &exitErr{ExitInvalidInputs,
					fmt.Errorf("unknown z-score variant %q", zscoreName)}
			}
			if zscoreFile != "" {
				cf.BackNorm = preproc.BackgroundNormalizationLoadingZScoreFile
				cf.ZScoreFile = zscoreFile
			}
			cf.SaveZScore = saveZScore

			switch strings.ToLower(envelopeName) {
			case "", "none":
			case "analytic":
				cf.Envelope = preproc.EnvelopeAnalytic
			case "peaktopeak":
				cf.Envelope = preproc.EnvelopePeakToPeak
			case "gap":
				cf.Envelope = preproc.EnvelopeGapBridging
			default:
				return &exitErr{ExitInvalidInputs,
					fmt.Errorf("unknown envelope %q", envelopeName)}
			}
			cf.EnvelopeDuration = envelopeMs

			if err := parseEpochs(cf, epochsSpec); err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}

			switch strings.ToLower(gfpPeaks) {
			case "", "none":
			case "auto":
				cf.GfpPeaks = preproc.GfpPeaksAuto
			default:
				cf.GfpPeaks = preproc.GfpPeaksList
				cf.GfpPeaksList = gfpPeaks
			}
			switch strings.ToLower(badEpochs) {
			case "", "none":
			case "auto":
				cf.BadEpochs = preproc.BadEpochsAuto
			default:
				cf.BadEpochs = preproc.BadEpochsList
				cf.BadEpochsList = badEpochs
			}
			cf.BadEpochsTolerance = badTolerance

			res, err := cf.Run(args)
			if err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}
			for gi, group := range res.OutGroups {
				fmt.Printf("epoch %d: %d files in %s\n", gi, len(group), res.OutDirs[gi])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&xyzFile, "xyz", "", "electrode coordinates file")
	cmd.Flags().StringVar(&spatialFilter, "spatial-filter", "none", "none | outlier | interseptile")
	cmd.Flags().StringVar(&inverseFile, "inverse", "", "inverse matrix file")
	cmd.Flags().StringVar(&regularize, "regularization", "4", "level 0-12, G (auto global) or L (auto local)")
	cmd.Flags().BoolVar(&vectorial, "vectorial", false, "keep 3 components per solution point")
	cmd.Flags().BoolVar(&mergeComplex, "merge-complex", false, "inputs alternate real / imaginary pairs")
	cmd.Flags().BoolVar(&gfpNormalize, "gfp-normalize", false, "background GFP normalization")
	cmd.Flags().StringVar(&zscoreName, "zscore", "none", "none | z | zpos | zscore | zcomp")
	cmd.Flags().StringVar(&zscoreFile, "zscore-file", "", "load factors instead of computing them")
	cmd.Flags().BoolVar(&saveZScore, "save-zscore", false, "write computed factors in both orientations")
	cmd.Flags().BoolVar(&ranking, "rank", false, "rank values within each map")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "clip magnitudes below this to 0")
	cmd.Flags().StringVar(&envelopeName, "envelope", "none", "none | analytic | peaktopeak | gap")
	cmd.Flags().Float64Var(&envelopeMs, "envelope-ms", 0, "envelope window in ms")
	cmd.Flags().StringVar(&epochsSpec, "epochs", "whole", "whole | periodic:<frames> | <from>-<to>[,...]")
	cmd.Flags().StringVar(&gfpPeaks, "gfp-peaks", "none", "none | auto | <marker names>")
	cmd.Flags().StringVar(&badEpochs, "bad-epochs", "none", "none | auto | <marker names>")
	cmd.Flags().Float64Var(&badTolerance, "bad-tolerance", preproc.BadEpochsToleranceDefault,
		"bad epoch detector tolerance in robust SD")
	cmd.Flags().Float64Var(&samplingFreq, "sfreq", 0, "sampling frequency in Hz")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.Flags().StringVar(&prefix, "prefix", "", "output file prefix")
	return cmd
}

func parseEpochs(cf *preproc.Config, spec string) error {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "" || strings.EqualFold(spec, "whole"):
		cf.Epochs = markers.EpochsWhole
	case strings.HasPrefix(strings.ToLower(spec), "periodic:"):
		n, err := strconv.ParseInt(spec[len("periodic:"):], 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("bad periodic epoch size in %q", spec)
		}
		cf.Epochs = markers.EpochsPeriodic
		cf.EpochPeriod = n
	default:
		cf.Epochs = markers.EpochsFromList
		for _, chunk := range strings.Split(spec, ",") {
			parts := strings.SplitN(strings.TrimSpace(chunk), "-", 2)
			if len(parts) != 2 {
				return fmt.Errorf("bad epoch %q, expected <from>-<to>", chunk)
			}
			from, err1 := strconv.ParseInt(parts[0], 10, 64)
			to, err2 := strconv.ParseInt(parts[1], 10, 64)
			if err1 != nil || err2 != nil || to < from {
				return fmt.Errorf("bad epoch %q", chunk)
			}
			cf.EpochFrom = append(cf.EpochFrom, from)
			cf.EpochTo = append(cf.EpochTo, to)
		}
	}
	return nil
}

// loadInverse reads an inverse operator file: a tab-separated matrix of
// (3*numSolPoints) x numElectrodes, used for every regularization level.
// Multi-level operators concatenate blocks vertically with a blank line;
// the simple single-block form is the common case here.
func loadInverse(fname string) (*preproc.InverseMatrix, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	var blocks [][][]float64
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			if len(rows) > 0 {
				blocks = append(blocks, rows)
				rows = nil
			}
			continue
		}
		if strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		row := make([]float64, len(fields))
		numeric := true
		for i, s := range fields {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				numeric = false
				break
			}
			row[i] = v
		}
		if !numeric {
			continue // header line
		}
		rows = append(rows, row)
	}
	if len(rows) > 0 {
		blocks = append(blocks, rows)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%s: empty inverse matrix", fname)
	}
	im := &preproc.InverseMatrix{Name: baseName(fname)}
	for _, b := range blocks {
		r := len(b)
		c := len(b[0])
		if r%3 != 0 {
			return nil, fmt.Errorf("%s: inverse rows %d not a multiple of 3", fname, r)
		}
		m := mat.NewDense(r, c, nil)
		for i, row := range b {
			if len(row) != c {
				return nil, fmt.Errorf("%s: ragged inverse matrix", fname)
			}
			for j, v := range row {
				m.Set(i, j, v)
			}
		}
		im.Invs = append(im.Invs, m)
	}
	return im, nil
}

func baseName(fname string) string {
	base := fname
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
