// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ccnlab/esi/markers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMergeComplex(t *testing.T) {
	re := NewMaps(2, 2)
	im := NewMaps(2, 2)
	re.Vals[0][0] = 3
	im.Vals[0][0] = 4
	re.SamplingFreq = 250
	out := MergeComplex(re, im)
	assert.InDelta(t, 5, float64(out.Vals[0][0]), 1e-6)
	assert.Equal(t, 0.0, out.SamplingFreq)
	assert.Equal(t, KindPositive, out.Kind)
}

func TestThreshold(t *testing.T) {
	m := NewMaps(1, 4)
	copy(m.Vals[0], []float32{0.5, -0.5, 2, -2})
	m.Threshold(1)
	assert.Equal(t, []float32{0, 0, 2, -2}, m.Vals[0])
}

func TestToRankTiesAndNulls(t *testing.T) {
	m := NewMaps(1, 5)
	copy(m.Vals[0], []float32{0, 3, 1, 3, 2})
	m.ToRank()
	row := m.Vals[0]
	// null stays null
	assert.Equal(t, float32(0), row[0])
	// smallest non-null gets the lowest rank
	assert.InDelta(t, 0.25, float64(row[2]), 1e-6)
	// ties share their averaged rank
	assert.Equal(t, row[1], row[3])
	assert.InDelta(t, 0.875, float64(row[1]), 1e-6)
	assert.InDelta(t, 0.5, float64(row[4]), 1e-6)
}

func TestGfpNormalization(t *testing.T) {
	m := NewMaps(200, 4)
	for t0 := range m.Vals {
		for c := range m.Vals[t0] {
			v := float32(2)
			if c%2 == 1 {
				v = -2
			}
			m.Vals[t0][c] = v
		}
	}
	factor := m.ComputeGfpNormalization()
	m.ApplyGfpNormalization(factor)
	gfp := m.GFP()
	assert.InDelta(t, 1, gfp[0], 0.05)
}

func TestZScoreSignedChangesKind(t *testing.T) {
	m := NewMaps(100, 2)
	for ti := range m.Vals {
		m.Vals[ti][0] = float32(ti % 7)
		m.Vals[ti][1] = float32(10 + ti%5)
	}
	m.Kind = KindPositive
	zf := ComputeZScore(m, ZScorePositiveCenterScale)
	ApplyZScore(m, ZScorePositiveCenterScale, zf)
	assert.Equal(t, KindScalar, m.Kind)
}

func TestZScoreOffsetNonNegative(t *testing.T) {
	m := NewMaps(100, 1)
	for ti := range m.Vals {
		m.Vals[ti][0] = float32(ti%11) * 0.1
	}
	zf := ComputeZScore(m, ZScorePositiveCenterScaleOffset)
	ApplyZScore(m, ZScorePositiveCenterScaleOffset, zf)
	for ti := range m.Vals {
		assert.GreaterOrEqual(t, m.Vals[ti][0], float32(0))
	}
}

func TestZScoreByComponent(t *testing.T) {
	m := NewMaps(50, 3) // one vectorial channel
	m.Kind = KindVector
	for ti := range m.Vals {
		m.Vals[ti][0] = float32(ti)*0.1 + 5
		m.Vals[ti][1] = float32(ti) * 0.2
		m.Vals[ti][2] = -3
	}
	zf := ComputeZScore(m, ZScoreVectorialCenterScaleByComponent)
	require.Len(t, zf.Vals, 1)
	ApplyZScore(m, ZScoreVectorialCenterScaleByComponent, zf)
	// each component is centered on its own median
	mid := m.Vals[25]
	assert.InDelta(t, 0, float64(mid[0]), 0.5)
	assert.InDelta(t, 0, float64(mid[1]), 0.5)
	assert.InDelta(t, 0, float64(mid[2]), 1e-5)
}

func TestZScoreFlags(t *testing.T) {
	z := ZScorePositiveCenterScaleOffset.With(ZScoreAllData | ZScoreDimension3)
	assert.True(t, z.IsZScore())
	assert.False(t, z.IsVectorial())
	assert.Equal(t, ZScorePositiveCenterScaleOffset, z.Processing())
	assert.Equal(t, ZScoreAllData|ZScoreDimension3, z.Options())
	assert.Equal(t, "ZPos", z.Infix())
}

func TestEnvelopeNonNegative(t *testing.T) {
	for _, et := range []EnvelopeType{EnvelopeAnalytic, EnvelopePeakToPeak, EnvelopeGapBridging} {
		m := NewMaps(128, 2)
		m.SamplingFreq = 128
		for ti := range m.Vals {
			m.Vals[ti][0] = float32(math.Sin(float64(ti) * 0.3))
			m.Vals[ti][1] = float32(math.Cos(float64(ti) * 0.2))
		}
		m.Envelope(et, 100)
		assert.Equal(t, KindPositive, m.Kind)
		for ti := range m.Vals {
			for _, v := range m.Vals[ti] {
				assert.GreaterOrEqual(t, v, float32(0), "envelope %d", et)
			}
		}
	}
}

func TestAnalyticEnvelopeOfSine(t *testing.T) {
	n := 256
	x := make([]float64, n)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 8 * float64(i) / float64(n))
	}
	env := analyticEnvelope(x)
	// away from the borders, the envelope of a pure sine is ~1
	for i := n / 4; i < 3*n/4; i++ {
		assert.InDelta(t, 1, env[i], 0.1, "frame %d", i)
	}
}

func TestRoiAverage(t *testing.T) {
	m := NewMaps(2, 4)
	copy(m.Vals[0], []float32{1, 3, 10, 20})
	copy(m.Vals[1], []float32{2, 4, 30, 40})
	rois := &Rois{
		Name:    "test",
		Names:   []string{"front", "back"},
		Indices: [][]int{{0, 1}, {2, 3}},
		Dim:     4,
	}
	require.NoError(t, rois.Validate())
	out, err := rois.Average(m, RoiMean)
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumCh())
	assert.InDelta(t, 2, float64(out.Vals[0][0]), 1e-6)
	assert.InDelta(t, 15, float64(out.Vals[0][1]), 1e-6)

	med, err := rois.Average(m, RoiMedian)
	require.NoError(t, err)
	assert.InDelta(t, 2, float64(med.Vals[0][0]), 1e-6)
}

func TestRoiRejectsVector(t *testing.T) {
	m := NewMaps(1, 6)
	m.Kind = KindVector
	rois := &Rois{Indices: [][]int{{0}}, Names: []string{"a"}, Dim: 6}
	_, err := rois.Average(m, RoiMean)
	require.Error(t, err)
}

func TestBadEpochsDetection(t *testing.T) {
	m := NewMaps(1024, 4)
	m.SamplingFreq = 256
	for ti := range m.Vals {
		for c := range m.Vals[ti] {
			v := float32(math.Sin(float64(ti)*0.1 + float64(c)))
			if ti >= 500 && ti < 560 {
				v *= 50 // artifact burst
			}
			m.Vals[ti][c] = v
		}
	}
	bad := BadEpochsToMarkers(m, BadEpochsToleranceDefault)
	require.NotEmpty(t, bad)
	covers := false
	for _, b := range bad {
		if b.From <= 520 && b.To >= 520 {
			covers = true
		}
	}
	assert.True(t, covers)
}

func TestInverseApplyNormAndVector(t *testing.T) {
	// 2 solution points, 3 electrodes
	inv := mat.NewDense(6, 3, nil)
	for i := 0; i < 6; i++ {
		inv.Set(i, i%3, 1)
	}
	im := &InverseMatrix{Name: "test", Invs: []*mat.Dense{inv}}
	assert.Equal(t, 3, im.NumElectrodes())
	assert.Equal(t, 2, im.NumSolPoints())

	data := NewMaps(1, 3)
	copy(data.Vals[0], []float32{1, 2, 2})

	norm, used, err := im.Apply(data, Regularization0, false)
	require.NoError(t, err)
	assert.Equal(t, Regularization0, used)
	assert.Equal(t, 2, norm.NumCh())
	assert.InDelta(t, 3, float64(norm.Vals[0][0]), 1e-6)

	vec, _, err := im.Apply(data, Regularization0, true)
	require.NoError(t, err)
	assert.Equal(t, 6, vec.NumCh())
	assert.Equal(t, KindVector, vec.Kind)
}

func TestInverseDimensionMismatch(t *testing.T) {
	inv := mat.NewDense(3, 4, nil)
	im := &InverseMatrix{Invs: []*mat.Dense{inv}}
	data := NewMaps(1, 3)
	_, _, err := im.Apply(data, Regularization0, false)
	require.Error(t, err)
}

func TestPipelineThresholdRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "subj1.sef.tsv")
	m := NewMaps(20, 3)
	m.Chans = []string{"Fz", "Cz", "Pz"}
	for ti := range m.Vals {
		for c := range m.Vals[ti] {
			m.Vals[ti][c] = float32(ti%5) - 2
		}
	}
	require.NoError(t, m.WriteFile(in))

	cf := &Config{}
	cf.Defaults()
	cf.OutputDir = filepath.Join(dir, "out")
	cf.Thresholding = true
	cf.Threshold = 1.5

	res, err := cf.Run([]string{in})
	require.NoError(t, err)
	require.Len(t, res.OutGroups, 1)
	require.Len(t, res.OutGroups[0], 1)
	out := res.OutGroups[0][0]
	assert.True(t, strings.Contains(filepath.Base(out), ".Clip1.50"),
		"name %s", filepath.Base(out))

	loaded, err := ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 20, loaded.NumTF())
	for ti := range loaded.Vals {
		for _, v := range loaded.Vals[ti] {
			if v != 0 {
				assert.GreaterOrEqual(t, math.Abs(float64(v)), 1.5)
			}
		}
	}
}

func TestPipelinePassthroughWhenNothingToDo(t *testing.T) {
	cf := &Config{}
	cf.Defaults()
	res, err := cf.Run([]string{"whatever.sef.tsv"})
	require.NoError(t, err)
	assert.False(t, res.NewFiles)
	require.Len(t, res.OutGroups, 1)
	assert.Equal(t, "whatever.sef.tsv", res.OutGroups[0][0])
}

func TestPipelineEpochsNaming(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "subj2.sef.tsv")
	m := NewMaps(100, 2)
	require.NoError(t, m.WriteFile(in))

	cf := &Config{}
	cf.Defaults()
	cf.OutputDir = filepath.Join(dir, "out")
	cf.Epochs = markers.EpochsPeriodic
	cf.EpochPeriod = 50
	cf.Thresholding = true
	cf.Threshold = 0.5

	res, err := cf.Run([]string{in})
	require.NoError(t, err)
	require.Len(t, res.OutGroups, 2)
	assert.Contains(t, filepath.Base(res.OutGroups[0][0]), ".0_49")
	assert.Contains(t, filepath.Base(res.OutGroups[1][0]), ".50_99")
}

func TestWriteEpochsSelectsFrames(t *testing.T) {
	dir := t.TempDir()
	m := NewMaps(10, 1)
	for ti := range m.Vals {
		m.Vals[ti][0] = float32(ti)
	}
	fname := filepath.Join(dir, "sel.sef.tsv")
	eps := markers.List{{From: 2, To: 3}, {From: 7, To: 7}}
	require.NoError(t, m.WriteEpochs(fname, eps))
	loaded, err := ReadFile(fname)
	require.NoError(t, err)
	require.Equal(t, 3, loaded.NumTF())
	assert.InDelta(t, 2, float64(loaded.Vals[0][0]), 1e-6)
	assert.InDelta(t, 7, float64(loaded.Vals[2][0]), 1e-6)
}

func TestZScoreFactorsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	zf := &ZScoreFactors{Vals: [][]float64{
		{1, 2, 0, 0, 0, 0, 0, 0, 0},
		{3, 4, 0, 0, 0, 0, 0, 0, 0},
	}}
	fname := filepath.Join(dir, "factors.sef.tsv")
	require.NoError(t, WriteZScoreFactors(fname, zf))
	back, err := ReadZScoreFactors(fname)
	require.NoError(t, err)
	require.Len(t, back.Vals, 2)
	assert.Equal(t, 1.0, back.Vals[0][0])
	assert.Equal(t, 4.0, back.Vals[1][1])
	_ = os.Remove(fname)
}
