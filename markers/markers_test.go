// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package markers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortAndClean(t *testing.T) {
	l := List{
		{From: 10, To: 20, Name: "b"},
		{From: 0, To: 5, Name: "a"},
		{From: 10, To: 20, Name: "b"}, // duplicate
	}
	l.SortAndClean()
	require.Len(t, l, 2)
	assert.Equal(t, int64(0), l[0].From)
	assert.Equal(t, int64(10), l[1].From)
}

func TestKeep(t *testing.T) {
	l := List{{From: 0, To: 10}, {From: 20, To: 30}, {From: 50, To: 60}}
	l.Keep(5, 25)
	require.Len(t, l, 2)
	assert.Equal(t, int64(5), l[0].From)
	assert.Equal(t, int64(10), l[0].To)
	assert.Equal(t, int64(25), l[1].To)
}

func TestClipSplitsStraddlers(t *testing.T) {
	l := List{{From: 0, To: 100, Name: "Block"}}
	bad := List{{From: 40, To: 60}}
	l.Clip(bad)
	require.Len(t, l, 2)
	assert.Equal(t, int64(0), l[0].From)
	assert.Equal(t, int64(39), l[0].To)
	assert.Equal(t, int64(61), l[1].From)
	assert.Equal(t, int64(100), l[1].To)
	assert.Equal(t, "Block", l[0].Name)
}

func TestRemoveDropsOverlapping(t *testing.T) {
	l := List{{From: 10, To: 10}, {From: 50, To: 50}, {From: 90, To: 90}}
	bad := List{{From: 40, To: 60}}
	l.Remove(bad)
	require.Len(t, l, 2)
	assert.Equal(t, int64(10), l[0].From)
	assert.Equal(t, int64(90), l[1].From)
}

func TestInsertByName(t *testing.T) {
	src := List{{From: 1, To: 1, Name: "peak"}, {From: 2, To: 2, Name: "other"}}
	var l List
	l.Insert(src, "peak")
	require.Len(t, l, 1)
	assert.Equal(t, "peak", l[0].Name)
	l.Insert(src, "")
	assert.Len(t, l, 3)
}

func TestToTimeChunksMerges(t *testing.T) {
	src := List{
		{From: 0, To: 10, Name: "bad"},
		{From: 8, To: 20, Name: "bad"},
		{From: 40, To: 50, Name: "bad"},
		{From: 5, To: 99, Name: "good"},
	}
	out := ToTimeChunks(src, "bad", 0, 99, "BadEpoch")
	require.Len(t, out, 2)
	assert.Equal(t, int64(0), out[0].From)
	assert.Equal(t, int64(20), out[0].To)
	assert.Equal(t, int64(40), out[1].From)
	assert.Equal(t, "BadEpoch", out[0].Name)
}

func TestMaxTrackToMarkers(t *testing.T) {
	track := []float64{0, 1, 0, 2, 5, 2, 0, 3, 0}
	peaks := MaxTrackToMarkers(track, 0, int64(len(track)-1), true, "MaxGfp")
	require.Len(t, peaks, 3)
	assert.Equal(t, int64(1), peaks[0].From)
	assert.Equal(t, int64(4), peaks[1].From)
	assert.Equal(t, int64(7), peaks[2].From)
}

func TestEpochsToMarkers(t *testing.T) {
	whole := EpochsToMarkers(EpochsWhole, nil, nil, 0, 99, 0)
	require.Len(t, whole, 1)
	assert.Equal(t, int64(99), whole[0].To)

	per := EpochsToMarkers(EpochsPeriodic, nil, nil, 0, 99, 40)
	require.Len(t, per, 3)
	assert.Equal(t, int64(80), per[2].From)
	assert.Equal(t, int64(99), per[2].To)

	list := EpochsToMarkers(EpochsFromList, []int64{-5, 50}, []int64{10, 200}, 0, 99, 0)
	require.Len(t, list, 2)
	assert.Equal(t, int64(0), list[0].From)
	assert.Equal(t, int64(99), list[1].To)
}

func TestTimeCursorConversions(t *testing.T) {
	a := NewTimeCursor(1000, 0, 999) // 1 kHz
	b := NewTimeCursor(500, 0, 499)  // 500 Hz

	a.SetPos(100, 200)
	b.Assign(a)
	assert.Equal(t, int64(50), b.PosMin())
	assert.Equal(t, int64(100), b.PosMax())
	assert.True(t, b.Equal(a))
	assert.True(t, a.Equal(b))

	b.ShiftPos(10)
	assert.False(t, b.Equal(a))
}

func TestTimeCursorExtend(t *testing.T) {
	c := NewTimeCursor(0, 0, 99)
	c.SetPos(50, 50)
	c.StartExtending()
	c.SetExtendingPos(70)
	assert.True(t, c.IsExtending())
	assert.Equal(t, int64(50), c.PosMin())
	assert.Equal(t, int64(70), c.PosMax())
	c.SetExtendingPos(30)
	assert.Equal(t, int64(30), c.PosMin())
	assert.Equal(t, int64(50), c.PosMax())
}

func TestTimeCursorShiftClamps(t *testing.T) {
	c := NewTimeCursor(0, 0, 99)
	c.SetPos(90, 95)
	c.ShiftPos(20)
	assert.Equal(t, int64(99), c.PosMax())
	assert.Equal(t, int64(6), c.Length())
}
