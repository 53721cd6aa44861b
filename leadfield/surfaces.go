// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leadfield

import (
	"fmt"
	"os"

	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/tissues"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/goki/mat32"
)

// SurfaceCluster is one tissue interface expressed as per-electrode surface
// points in MRI space.
type SurfaceCluster struct {
	Name   string
	Points geom.Points
}

// TissueSurfaces converts the relative radii into the six tissue interface
// clusters (outer scalp, outer / inner skull, outer / inner spongy skull,
// inner CSF), each point translated back to MRI space.
func TissueSurfaces(radii *tissues.Radii, electrodes *geom.Points,
	mriCenter, inverseCenter mat32.Vec3) []SurfaceCluster {

	deltaCenter := inverseCenter.Sub(mriCenter)
	mk := func(name string, ti tissues.Index, li tissues.Limit) SurfaceCluster {
		cl := SurfaceCluster{Name: name}
		cl.Points.Pos = make([]mat32.Vec3, electrodes.Len())
		cl.Points.Names = electrodes.Names
		for ei, p := range electrodes.Pos {
			cl.Points.Pos[ei] = p.MulScalar(radii.At(ei, ti, li)).Add(deltaCenter)
		}
		return cl
	}
	return []SurfaceCluster{
		mk("Scalp", tissues.Scalp, tissues.OuterRel),
		mk("SkullOut", tissues.Skull, tissues.OuterRel),
		mk("SkullSpongyOut", tissues.SkullSpongy, tissues.OuterRel),
		mk("SkullSpongyIn", tissues.SkullSpongy, tissues.InnerRel),
		mk("SkullIn", tissues.Skull, tissues.InnerRel),
		mk("CSF", tissues.CSF, tissues.InnerRel),
	}
}

// WriteSurfaces writes the clusters as one tab-separated multi-cluster point
// file: cluster, name, x, y, z.
func WriteSurfaces(clusters []SurfaceCluster, fname string) error {
	dt := &etable.Table{}
	rows := 0
	for _, cl := range clusters {
		rows += cl.Points.Len()
	}
	dt.SetFromSchema(etable.Schema{
		{"Cluster", etensor.STRING, nil, nil},
		{"Name", etensor.STRING, nil, nil},
		{"X", etensor.FLOAT64, nil, nil},
		{"Y", etensor.FLOAT64, nil, nil},
		{"Z", etensor.FLOAT64, nil, nil},
	}, rows)
	row := 0
	for _, cl := range clusters {
		for i, p := range cl.Points.Pos {
			dt.SetCellString("Cluster", row, cl.Name)
			name := fmt.Sprintf("%d", i+1)
			if cl.Points.Names != nil {
				name = cl.Points.Names[i]
			}
			dt.SetCellString("Name", row, name)
			dt.SetCellFloat("X", row, float64(p.X))
			dt.SetCellFloat("Y", row, float64(p.Y))
			dt.SetCellFloat("Z", row, float64(p.Z))
			row++
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
