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
	"github.com/ccnlab/esi/volume"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
	"github.com/okieraised/gonii"
	"gonum.org/v1/gonum/mat"
)

// loadNifti reads a NIfTI volume into a Vol, with the anatomical origin set
// to the volume center; the sform offset is not read.
func loadNifti(fname string) (*volume.Vol, error) {
	rd, err := gonii.NewNiiReader(gonii.WithReadImageFile(fname), gonii.WithReadRetainHeader(true))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fname, err)
	}
	if err := rd.Parse(); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", fname, err)
	}
	img := rd.GetNiiData()
	nx, ny, nz := int(img.Nx), int(img.Ny), int(img.Nz)
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("%s: null extents %d x %d x %d", fname, nx, ny, nz)
	}
	v := volume.New(nx, ny, nz)
	v.VoxSize = mat32.Vec3{X: float32(img.Dx), Y: float32(img.Dy), Z: float32(img.Dz)}
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				v.Set(x, y, z, float32(img.GetAt(int64(x), int64(y), int64(z), 0)))
			}
		}
	}
	v.Origin = mat32.Vec3{X: float32(nx) / 2, Y: float32(ny) / 2, Z: float32(nz) / 2}
	v.EstimateBackground()
	return v, nil
}

// loadPoints reads a whitespace-delimited point file: optional name then
// x y z per line (or x y z then name). Lines starting with # are skipped.
func loadPoints(fname string) (*geom.Points, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ps := &geom.Points{}
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		var name string
		var nums []string
		switch {
		case len(fields) >= 4:
			if _, err := strconv.ParseFloat(fields[0], 64); err != nil {
				name, nums = fields[0], fields[1:4]
			} else {
				nums, name = fields[0:3], fields[3]
			}
		case len(fields) == 3:
			nums = fields
		default:
			return nil, fmt.Errorf("%s:%d: expected name x y z", fname, line)
		}
		var p mat32.Vec3
		for i, s := range nums {
			val, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad coordinate %q", fname, line, s)
			}
			switch i {
			case 0:
				p.X = float32(val)
			case 1:
				p.Y = float32(val)
			case 2:
				p.Z = float32(val)
			}
		}
		ps.Pos = append(ps.Pos, p)
		ps.Names = append(ps.Names, name)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ps.Pos) == 0 {
		return nil, fmt.Errorf("%s: empty point set", fname)
	}
	return ps, nil
}

// writeMatrix writes K row-major as a tab-separated table, one row per
// electrode, with xyz column triplets per solution point.
func writeMatrix(fname string, k *mat.Dense) error {
	rows, cols := k.Dims()
	sch := make(etable.Schema, cols)
	axes := [3]string{"x", "y", "z"}
	for c := 0; c < cols; c++ {
		sch[c] = etable.Column{fmt.Sprintf("sp%d%s", c/3+1, axes[c%3]), etensor.FLOAT64, nil, nil}
	}
	dt := &etable.Table{}
	dt.SetFromSchema(sch, rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			dt.SetCellFloat(dt.ColNames[c], r, k.At(r, c))
		}
	}
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	dt.WriteCSVHeaders(f, etable.Tab)
	for r := 0; r < rows; r++ {
		dt.WriteCSVRow(f, r, etable.Tab)
	}
	return nil
}
