// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package markers

// TimeCursor tracks a current time interval [PosMin..PosMax] within the
// limits of one track, together with a fixed pivot and an extending pointer.
// Cursors owned by tracks with different sampling frequencies convert
// through absolute microseconds on assignment; equality is defined modulo
// those conversions.
type TimeCursor struct {
	SamplingFreq float64 `desc:"owner's sampling frequency in Hz -- 0 means raw frames"`

	limitMin int64
	limitMax int64
	posMin   int64
	posMax   int64

	extending bool
	posPivot  int64
	posExtend int64
}

// NewTimeCursor returns a cursor over [limitMin..limitMax] at the given
// sampling frequency, positioned at its lower limit.
func NewTimeCursor(samplingFreq float64, limitMin, limitMax int64) *TimeCursor {
	tc := &TimeCursor{SamplingFreq: samplingFreq, limitMin: limitMin, limitMax: limitMax}
	tc.SetPos(limitMin, limitMin)
	return tc
}

func (tc *TimeCursor) LimitMin() int64     { return tc.limitMin }
func (tc *TimeCursor) LimitMax() int64     { return tc.limitMax }
func (tc *TimeCursor) PosMin() int64       { return tc.posMin }
func (tc *TimeCursor) PosMax() int64       { return tc.posMax }
func (tc *TimeCursor) FixedPos() int64     { return tc.posPivot }
func (tc *TimeCursor) ExtendingPos() int64 { return tc.posExtend }
func (tc *TimeCursor) Length() int64       { return tc.posMax - tc.posMin + 1 }
func (tc *TimeCursor) IsSplit() bool       { return tc.posMin != tc.posMax }
func (tc *TimeCursor) IsExtending() bool   { return tc.extending }

func (tc *TimeCursor) clamp(p int64) int64 {
	if p < tc.limitMin {
		return tc.limitMin
	}
	if p > tc.limitMax {
		return tc.limitMax
	}
	return p
}

// SetPos sets the interval, also resetting the extending state.
func (tc *TimeCursor) SetPos(min, max int64) {
	if min > max {
		min, max = max, min
	}
	tc.posMin = tc.clamp(min)
	tc.posMax = tc.clamp(max)
	tc.posPivot = tc.posMin
	tc.posExtend = tc.posMax
	tc.extending = false
}

// ShiftPos translates the interval by delta, clamped to the limits while
// preserving its length.
func (tc *TimeCursor) ShiftPos(delta int64) {
	length := tc.Length()
	switch {
	case tc.posMin+delta < tc.limitMin:
		tc.SetPos(tc.limitMin, tc.limitMin+length-1)
	case tc.posMax+delta > tc.limitMax:
		tc.SetPos(tc.limitMax-length+1, tc.limitMax)
	default:
		tc.SetPos(tc.posMin+delta, tc.posMax+delta)
	}
}

// StartExtending pins the pivot and lets SetExtendingPos grow the interval.
func (tc *TimeCursor) StartExtending() { tc.extending = true }

// StopExtending freezes the current interval.
func (tc *TimeCursor) StopExtending() { tc.extending = false }

// SetExtendingPos moves the extending pointer, growing the interval between
// the pivot and the pointer.
func (tc *TimeCursor) SetExtendingPos(pos int64) {
	tc.posExtend = tc.clamp(pos)
	if tc.posExtend < tc.posPivot {
		tc.posMin, tc.posMax = tc.posExtend, tc.posPivot
	} else {
		tc.posMin, tc.posMax = tc.posPivot, tc.posExtend
	}
}

// ToMicroseconds converts a relative frame of this cursor to absolute
// microseconds. Without a sampling frequency, frames pass through.
func (tc *TimeCursor) ToMicroseconds(tf int64) float64 {
	if tc.SamplingFreq <= 0 {
		return float64(tf)
	}
	return float64(tf) / tc.SamplingFreq * 1e6
}

// FromMicroseconds converts absolute microseconds to the nearest relative
// frame of this cursor.
func (tc *TimeCursor) FromMicroseconds(us float64) int64 {
	if tc.SamplingFreq <= 0 {
		return int64(us + 0.5)
	}
	return int64(us/1e6*tc.SamplingFreq + 0.5)
}

// TranslateFrom converts a frame of the other cursor into this cursor's
// frames, via absolute microseconds.
func (tc *TimeCursor) TranslateFrom(o *TimeCursor, tf int64) int64 {
	return tc.FromMicroseconds(o.ToMicroseconds(tf))
}

// Assign copies the position of o into tc, converting through microseconds.
func (tc *TimeCursor) Assign(o *TimeCursor) {
	min := tc.TranslateFrom(o, o.posMin)
	max := tc.TranslateFrom(o, o.posMax)
	tc.SetPos(min, max)
	tc.posPivot = tc.TranslateFrom(o, o.posPivot)
	tc.posExtend = tc.TranslateFrom(o, o.posExtend)
	tc.extending = o.extending
}

// Equal reports whether both cursors denote the same absolute position.
func (tc *TimeCursor) Equal(o *TimeCursor) bool {
	return tc.posMin == tc.TranslateFrom(o, o.posMin) &&
		tc.posMax == tc.TranslateFrom(o, o.posMax)
}
