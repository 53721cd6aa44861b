// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// esibuild computes EEG lead fields from head anatomy and runs the ESI
// preprocessing pipeline in batch.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes of the batch entry points.
const (
	ExitOK            = 0
	ExitInvalidInputs = 1
	ExitGeometry      = 2
	ExitRadius        = 3
	ExitNumerical     = 4
)

func main() {
	root := &cobra.Command{
		Use:          "esibuild",
		Short:        "EEG electrical source imaging: lead fields and preprocessing",
		SilenceUsage: true,
	}
	root.AddCommand(leadFieldCmd())
	root.AddCommand(preprocessCmd())

	if err := root.Execute(); err != nil {
		// subcommands set their specific exit code through exitErr
		if ee, ok := err.(*exitErr); ok {
			os.Exit(ee.code)
		}
		os.Exit(ExitInvalidInputs)
	}
}

// exitErr carries a batch exit code through cobra.
type exitErr struct {
	code int
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }
