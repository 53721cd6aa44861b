// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preproc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
)

// factorColNames are the per-channel factor columns, matching the factor
// matrix layout.
var factorColNames = [NumZMatrix]string{
	"Center", "Spread", "C2", "S2", "C3", "S3", "R1", "R2", "R3",
}

// WriteZScoreFactors writes the factors per channel, one row per channel.
func WriteZScoreFactors(fname string, zf *ZScoreFactors) error {
	dt := &etable.Table{}
	sch := etable.Schema{{"Channel", etensor.INT64, nil, nil}}
	for _, cn := range factorColNames {
		sch = append(sch, etable.Column{cn, etensor.FLOAT64, nil, nil})
	}
	dt.SetFromSchema(sch, len(zf.Vals))
	for r, row := range zf.Vals {
		dt.SetCellFloat("Channel", r, float64(r+1))
		for c, cn := range factorColNames {
			dt.SetCellFloat(cn, r, row[c])
		}
	}
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	dt.WriteCSVHeaders(f, etable.Tab)
	for r := 0; r < dt.Rows; r++ {
		dt.WriteCSVRow(f, r, etable.Tab)
	}
	return nil
}

// WriteZScoreFactorsTransposed writes the factors the other way around, one
// row per factor and one column per channel, which visualizes per-point in
// source space.
func WriteZScoreFactorsTransposed(fname string, zf *ZScoreFactors) error {
	dt := &etable.Table{}
	sch := etable.Schema{{"Factor", etensor.STRING, nil, nil}}
	for ci := range zf.Vals {
		sch = append(sch, etable.Column{fmt.Sprintf("ch%d", ci+1), etensor.FLOAT64, nil, nil})
	}
	dt.SetFromSchema(sch, NumZMatrix)
	for r, cn := range factorColNames {
		dt.SetCellString("Factor", r, cn)
		for ci, row := range zf.Vals {
			dt.SetCellFloat(fmt.Sprintf("ch%d", ci+1), r, row[r])
		}
	}
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	dt.WriteCSVHeaders(f, etable.Tab)
	for r := 0; r < dt.Rows; r++ {
		dt.WriteCSVRow(f, r, etable.Tab)
	}
	return nil
}

// ReadZScoreFactors loads a per-channel factor file.
func ReadZScoreFactors(fname string) (*ZScoreFactors, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dt := &etable.Table{}
	if err := dt.ReadCSV(f, etable.Tab); err != nil {
		return nil, fmt.Errorf("preproc: reading z-score factors %s: %w", fname, err)
	}
	zf := &ZScoreFactors{Vals: make([][]float64, dt.Rows)}
	for r := 0; r < dt.Rows; r++ {
		zf.Vals[r] = make([]float64, NumZMatrix)
		for c, cn := range factorColNames {
			zf.Vals[r][c] = dt.CellFloat(cn, r)
		}
	}
	return zf, nil
}

// saveZScoreFactors writes the computed factors next to the outputs, in
// both orientations, and records them in the result.
func (cf *Config) saveZScoreFactors(res *Result, firstFile, infix string, zf *ZScoreFactors) error {
	base := filepath.Base(firstFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSuffix(base, ".sef")
	if cf.MergeComplex {
		base = strings.ReplaceAll(base, ".Real", "")
		base = strings.ReplaceAll(base, ".Imag", "")
	}
	name := cf.FilePrefix + base + infix + "." + cf.ZScore.FactorFileInfix()

	perChan := filepath.Join(cf.OutputDir, name+".sef.tsv")
	if err := WriteZScoreFactors(perChan, zf); err != nil {
		return err
	}
	res.ZScoreFiles = append(res.ZScoreFiles, perChan)

	perPoint := filepath.Join(cf.OutputDir, name+".ris.tsv")
	if err := WriteZScoreFactorsTransposed(perPoint, zf); err != nil {
		return err
	}
	res.ZScoreFiles = append(res.ZScoreFiles, perPoint)
	return nil
}
