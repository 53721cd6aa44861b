// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// EnvelopeType selects how the temporal envelope is extracted.
type EnvelopeType int

const (
	EnvelopeNone EnvelopeType = iota

	// EnvelopeAnalytic is the magnitude of the analytic (Hilbert) signal.
	// Best for non-rectified EEG; does not work on ESI norms.
	EnvelopeAnalytic

	// EnvelopePeakToPeak is the sliding-window max minus min, which handles
	// all data cases.
	EnvelopePeakToPeak

	// EnvelopeGapBridging takes the sliding maximum and bridges the gaps
	// between successive peaks linearly.
	EnvelopeGapBridging
)

// Envelope replaces each channel by its temporal envelope over windows of
// windowMs milliseconds. The output is non-negative. With a zero sampling
// frequency the window is interpreted directly in frames.
func (m *Maps) Envelope(et EnvelopeType, windowMs float64) {
	if et == EnvelopeNone || m.NumTF() == 0 {
		return
	}
	win := int(windowMs)
	if m.SamplingFreq > 0 {
		win = int(windowMs / 1000 * m.SamplingFreq)
	}
	if win < 1 {
		win = 1
	}
	numCh := m.NumCh()
	numTF := m.NumTF()
	ch := make([]float64, numTF)
	for ci := 0; ci < numCh; ci++ {
		for t := 0; t < numTF; t++ {
			ch[t] = float64(m.Vals[t][ci])
		}
		var env []float64
		switch et {
		case EnvelopeAnalytic:
			env = analyticEnvelope(ch)
			// smooth at the requested width
			env = slidingMean(env, win)
		case EnvelopePeakToPeak:
			env = slidingPeakToPeak(ch, win)
		case EnvelopeGapBridging:
			env = gapBridging(ch, win)
		}
		for t := 0; t < numTF; t++ {
			m.Vals[t][ci] = float32(env[t])
		}
	}
	m.Kind = KindPositive
}

// analyticEnvelope computes |x + i H(x)| through the FFT: positive
// frequencies doubled, negative zeroed.
func analyticEnvelope(x []float64) []float64 {
	n := len(x)
	fft := fourier.NewCmplxFFT(n)
	seq := make([]complex128, n)
	for i, v := range x {
		seq[i] = complex(v, 0)
	}
	coeff := fft.Coefficients(nil, seq)
	for i := 1; i < n; i++ {
		if i < (n+1)/2 {
			coeff[i] *= 2
		} else if i > n/2 {
			coeff[i] = 0
		}
	}
	analytic := fft.Sequence(nil, coeff)
	env := make([]float64, n)
	for i, c := range analytic {
		env[i] = math.Hypot(real(c), imag(c)) / float64(n)
	}
	return env
}

func slidingMean(x []float64, win int) []float64 {
	out := make([]float64, len(x))
	half := win / 2
	for i := range x {
		sum := 0.0
		n := 0
		for d := -half; d <= half; d++ {
			j := i + d
			if j < 0 || j >= len(x) {
				continue
			}
			sum += x[j]
			n++
		}
		out[i] = sum / float64(n)
	}
	return out
}

func slidingPeakToPeak(x []float64, win int) []float64 {
	out := make([]float64, len(x))
	half := win / 2
	for i := range x {
		lo, hi := x[i], x[i]
		for d := -half; d <= half; d++ {
			j := i + d
			if j < 0 || j >= len(x) {
				continue
			}
			if x[j] < lo {
				lo = x[j]
			}
			if x[j] > hi {
				hi = x[j]
			}
		}
		out[i] = hi - lo
	}
	return out
}

// gapBridging takes the local peaks of |x| and interpolates linearly
// between successive peaks at least a window apart.
func gapBridging(x []float64, win int) []float64 {
	n := len(x)
	abs := make([]float64, n)
	for i, v := range x {
		abs[i] = math.Abs(v)
	}
	// peak positions, at least win frames apart
	var peaks []int
	last := -win
	for i := 1; i < n-1; i++ {
		if abs[i] >= abs[i-1] && abs[i] >= abs[i+1] && i-last >= win {
			peaks = append(peaks, i)
			last = i
		}
	}
	if len(peaks) == 0 {
		return abs
	}
	out := make([]float64, n)
	prev := 0
	prevVal := abs[peaks[0]]
	for _, p := range peaks {
		for i := prev; i <= p; i++ {
			f := 0.0
			if p > prev {
				f = float64(i-prev) / float64(p-prev)
			}
			out[i] = prevVal*(1-f) + abs[p]*f
		}
		prev = p
		prevVal = abs[p]
	}
	for i := prev; i < n; i++ {
		out[i] = prevVal
	}
	return out
}
