// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ccnlab/esi/forward"
	"github.com/ccnlab/esi/geom"
	"github.com/ccnlab/esi/leadfield"
	"github.com/ccnlab/esi/tissues"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
	"github.com/spf13/cobra"
	"os"
)

func leadFieldCmd() *cobra.Command {
	var (
		headFile     string
		brainFile    string
		tissuesFile  string
		xyzFile      string
		spFile       string
		presetName   string
		age          float64
		adjustRadius bool
		smoothing    bool
		createSpongy bool
		outDir       string
	)
	cmd := &cobra.Command{
		Use:   "leadfield",
		Short: "Compute the lead field matrix K from head anatomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			preset, err := forward.PresetFromString(presetName)
			if err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}
			head, err := loadNifti(headFile)
			if err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}
			electrodes, err := loadPoints(xyzFile)
			if err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}
			solPoints, err := loadPoints(spFile)
			if err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}

			cf := &leadfield.Config{}
			cf.Defaults()
			cf.Preset = preset
			cf.Age = age
			cf.AdjustRadius = adjustRadius
			if !smoothing {
				cf.Smoothing = geom.SpatialFilterNone
			}

			var res *leadfield.Result
			switch {
			case tissuesFile != "":
				tiss, err := loadNifti(tissuesFile)
				if err != nil {
					return &exitErr{ExitInvalidInputs, err}
				}
				res, err = leadfield.BuildFromSegmentation(context.Background(), cf, head, tiss,
					electrodes, solPoints)
				if err != nil {
					return classifyBuildErr(err)
				}
			case brainFile != "":
				brain, err := loadNifti(brainFile)
				if err != nil {
					return &exitErr{ExitInvalidInputs, err}
				}
				res, err = leadfield.BuildFromT1(context.Background(), cf, head, brain,
					electrodes, solPoints)
				if err != nil {
					return classifyBuildErr(err)
				}
			default:
				return &exitErr{ExitInvalidInputs,
					fmt.Errorf("either --brain or --tissues is required")}
			}

			// reject numerically unusable columns before writing
			rejected := leadfield.NewRejected(res.SolPoints.Len())
			leadfield.CheckNull(res.K, rejected)
			if rejected.Count() == res.SolPoints.Len() {
				return &exitErr{ExitNumerical,
					fmt.Errorf("all solution point columns rejected")}
			}
			res.K = leadfield.RejectPoints(res.K, rejected)

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}
			if err := writeMatrix(filepath.Join(outDir, "leadfield.K.tsv"), res.K); err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}
			if err := writeRadii(filepath.Join(outDir, "tissues.radii.tsv"), res.Radii); err != nil {
				return &exitErr{ExitInvalidInputs, err}
			}
			if createSpongy {
				clusters := leadfield.TissueSurfaces(res.Radii, res.Electrodes,
					head.Origin, res.InverseCenter)
				if err := leadfield.WriteSurfaces(clusters,
					filepath.Join(outDir, "tissues.surfaces.tsv")); err != nil {
					return &exitErr{ExitInvalidInputs, err}
				}
			}
			fmt.Printf("wrote %s: %d electrodes x %d columns, %d points rejected\n",
				outDir, res.Electrodes.Len(), 3*res.SolPoints.Len()-3*rejected.Count(),
				rejected.Count())
			return nil
		},
	}
	cmd.Flags().StringVar(&headFile, "head", "", "head MRI volume (NIfTI)")
	cmd.Flags().StringVar(&brainFile, "brain", "", "brain mask volume (NIfTI)")
	cmd.Flags().StringVar(&tissuesFile, "tissues", "", "labelled tissues volume (NIfTI)")
	cmd.Flags().StringVar(&xyzFile, "xyz", "", "electrode coordinates file")
	cmd.Flags().StringVar(&spFile, "sp", "", "solution points file")
	cmd.Flags().StringVar(&presetName, "preset", "Ary3ShellApprox", "forward model preset")
	cmd.Flags().Float64Var(&age, "age", 30, "subject age in years")
	cmd.Flags().BoolVar(&adjustRadius, "adjust-radius", true, "rescale skull thickness to the age target")
	cmd.Flags().BoolVar(&smoothing, "smoothing", true, "spatially smooth the radius maps")
	cmd.Flags().BoolVar(&createSpongy, "create-spongy", true, "export the tissue interface surfaces, spongy skull included")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.MarkFlagRequired("head")
	cmd.MarkFlagRequired("xyz")
	cmd.MarkFlagRequired("sp")
	return cmd
}

// classifyBuildErr maps builder failures onto the batch exit codes.
func classifyBuildErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "guillotine") || strings.Contains(msg, "spherization"):
		return &exitErr{ExitGeometry, err}
	case strings.Contains(msg, "negative thickness"):
		return &exitErr{ExitRadius, err}
	default:
		return &exitErr{ExitInvalidInputs, err}
	}
}

// writeRadii reports the radii array as one row per (electrode, tissue).
func writeRadii(fname string, r *tissues.Radii) error {
	sch := etable.Schema{
		{"El", etensor.INT64, nil, nil},
		{"Tissue", etensor.STRING, nil, nil},
	}
	for _, ln := range tissues.LimitNames {
		sch = append(sch, etable.Column{ln, etensor.FLOAT64, nil, nil})
	}
	dt := &etable.Table{}
	dt.SetFromSchema(sch, r.NumE*int(tissues.NumTissues-1))
	row := 0
	for el := 0; el < r.NumE; el++ {
		for ti := tissues.NoTissue + 1; ti < tissues.NumTissues; ti++ {
			dt.SetCellFloat("El", row, float64(el+1))
			dt.SetCellString("Tissue", row, ti.String())
			for li := tissues.InnerAbs; li < tissues.NumLimits; li++ {
				dt.SetCellFloat(tissues.LimitNames[li], row, float64(r.At(el, ti, li)))
			}
			row++
		}
	}
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	dt.WriteCSVHeaders(f, etable.Tab)
	for ri := 0; ri < dt.Rows; ri++ {
		dt.WriteCSVRow(f, ri, etable.Tab)
	}
	return nil
}
