// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package markers provides time-frame markers over EEG tracks and the
// cursor abstraction shared by the preprocessing pipeline: sorted lists of
// (from, to, code, name, type) intervals with set-like operations.
package markers

import (
	"sort"
	"strings"
)

// Type classifies a marker.
type Type int

const (
	TypeUnknown Type = iota
	TypeTrigger
	TypeEvent
	TypeMarker
	TypeTemp
)

// Marker is one time interval [From..To] in time frames, inclusive.
type Marker struct {
	From int64  `desc:"first time frame"`
	To   int64  `desc:"last time frame, inclusive"`
	Code int    `desc:"numeric code"`
	Name string `desc:"marker name"`
	Type Type   `desc:"marker class"`
}

// Len is the number of time frames covered.
func (m Marker) Len() int64 { return m.To - m.From + 1 }

// Overlaps reports whether the two intervals intersect.
func (m Marker) Overlaps(o Marker) bool { return m.From <= o.To && o.From <= m.To }

// List is an ordered set of markers.
type List []Marker

// SortAndClean sorts by (From, To) and merges strictly identical markers.
func (l *List) SortAndClean() {
	sort.SliceStable(*l, func(i, j int) bool {
		if (*l)[i].From != (*l)[j].From {
			return (*l)[i].From < (*l)[j].From
		}
		return (*l)[i].To < (*l)[j].To
	})
	out := (*l)[:0]
	for i, m := range *l {
		if i > 0 && m == out[len(out)-1] {
			continue
		}
		out = append(out, m)
	}
	*l = out
}

// Keep clips the list to [from..to], dropping markers entirely outside and
// trimming the straddling ones.
func (l *List) Keep(from, to int64) {
	out := (*l)[:0]
	for _, m := range *l {
		if m.To < from || m.From > to {
			continue
		}
		if m.From < from {
			m.From = from
		}
		if m.To > to {
			m.To = to
		}
		out = append(out, m)
	}
	*l = out
}

// Clip subtracts the intervals of bad from the list, splitting markers that
// straddle a removed chunk. Marker identity is kept on the remains.
func (l *List) Clip(bad List) {
	if len(bad) == 0 {
		return
	}
	var out List
	for _, m := range *l {
		parts := List{m}
		for _, b := range bad {
			var next List
			for _, p := range parts {
				if !p.Overlaps(b) {
					next = append(next, p)
					continue
				}
				if p.From < b.From {
					left := p
					left.To = b.From - 1
					next = append(next, left)
				}
				if p.To > b.To {
					right := p
					right.From = b.To + 1
					next = append(next, right)
				}
			}
			parts = next
		}
		out = append(out, parts...)
	}
	*l = out
	l.SortAndClean()
}

// Remove drops every marker overlapping any interval of bad.
func (l *List) Remove(bad List) {
	if len(bad) == 0 {
		return
	}
	out := (*l)[:0]
	for _, m := range *l {
		hit := false
		for _, b := range bad {
			if m.Overlaps(b) {
				hit = true
				break
			}
		}
		if !hit {
			out = append(out, m)
		}
	}
	*l = out
}

// Insert adds the markers of src whose names match the given
// comma-separated name list (all when empty), keeping the list sorted.
func (l *List) Insert(src List, names string) {
	sel := nameSet(names)
	for _, m := range src {
		if sel == nil || sel[m.Name] {
			*l = append(*l, m)
		}
	}
	l.SortAndClean()
}

// ToTimeChunks consolidates the selected markers of src into merged
// non-overlapping chunks clipped to [from..to], named name. This is better
// than Insert when overlapping epochs must collapse into single intervals.
func ToTimeChunks(src List, names string, from, to int64, name string) List {
	sel := nameSet(names)
	var raw List
	for _, m := range src {
		if sel != nil && !sel[m.Name] {
			continue
		}
		if m.To < from || m.From > to {
			continue
		}
		if m.From < from {
			m.From = from
		}
		if m.To > to {
			m.To = to
		}
		raw = append(raw, m)
	}
	raw.SortAndClean()
	var out List
	for _, m := range raw {
		if len(out) > 0 && m.From <= out[len(out)-1].To+1 {
			if m.To > out[len(out)-1].To {
				out[len(out)-1].To = m.To
			}
			continue
		}
		out = append(out, Marker{From: m.From, To: m.To, Name: name, Type: TypeTemp})
	}
	return out
}

func nameSet(names string) map[string]bool {
	names = strings.TrimSpace(names)
	if names == "" {
		return nil
	}
	sel := map[string]bool{}
	for _, n := range strings.Split(names, ",") {
		sel[strings.TrimSpace(n)] = true
	}
	return sel
}

// MaxTrackToMarkers extracts the local maxima of track within [from..to] as
// single-frame markers. With strict set, plateaus are skipped.
func MaxTrackToMarkers(track []float64, from, to int64, strict bool, name string) List {
	var out List
	if from < 1 {
		from = 1
	}
	if to > int64(len(track))-2 {
		to = int64(len(track)) - 2
	}
	for t := from; t <= to; t++ {
		v := track[t]
		up := v > track[t-1]
		down := v > track[t+1]
		if !strict {
			up = v >= track[t-1]
			down = v >= track[t+1]
		}
		if up && down {
			out = append(out, Marker{From: t, To: t, Name: name, Type: TypeTemp})
		}
	}
	return out
}

// EpochsType selects how the writing epochs are generated.
type EpochsType int

const (
	EpochsWhole EpochsType = iota
	EpochsPeriodic
	EpochsFromList
)

// EpochsToMarkers generates the epoch list: the whole time range, periodic
// chunks of periodSize frames, or an explicit from / to list.
func EpochsToMarkers(et EpochsType, froms, tos []int64, limitMin, limitMax int64,
	periodSize int64) List {

	var out List
	switch et {
	case EpochsWhole:
		out = append(out, Marker{From: limitMin, To: limitMax, Name: "Whole", Type: TypeTemp})
	case EpochsPeriodic:
		if periodSize <= 0 {
			periodSize = limitMax - limitMin + 1
		}
		for from := limitMin; from <= limitMax; from += periodSize {
			to := from + periodSize - 1
			if to > limitMax {
				to = limitMax
			}
			out = append(out, Marker{From: from, To: to, Name: "Epoch", Type: TypeTemp})
		}
	case EpochsFromList:
		for i := range froms {
			m := Marker{From: froms[i], To: tos[i], Name: "Epoch", Type: TypeTemp}
			if m.From < limitMin {
				m.From = limitMin
			}
			if m.To > limitMax {
				m.To = limitMax
			}
			if m.From <= m.To {
				out = append(out, m)
			}
		}
	}
	return out
}
