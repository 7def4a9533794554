// Copyright (C) 2021 Toitware ApS.
//
// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; version
// 2.1 only.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// The license can be found in the file `LICENSE` in the top level
// directory of this repository.

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// WithSilent marks errors that have already been shown to the user and
// must not be printed again.
type WithSilent interface {
	error
	Silent() bool
}

// WithExitCode lets errors choose the process exit code.
type WithExitCode interface {
	error
	ExitCode() int
}

// DefaultRunWrapper adapts an error-returning command to cobra's Run
// signature: it prints non-silent errors and exits with the error's
// code.
func DefaultRunWrapper(f CobraErrorCommand) CobraCommand {
	return func(cmd *cobra.Command, args []string) {
		err := f(cmd, args)
		if err == nil {
			return
		}
		if ws, ok := err.(WithSilent); !ok || !ws.Silent() {
			fmt.Fprintln(os.Stderr, ErrorMessage(err))
		}
		code := 1
		if we, ok := err.(WithExitCode); ok {
			code = we.ExitCode()
		}
		os.Exit(code)
	}
}
