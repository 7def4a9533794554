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

package hpkg

import "fmt"

// testUI collects all reports so tests can assert on them.
type testUI struct {
	errors   []string
	warnings []string
	infos    []string
}

func (u *testUI) ReportError(format string, a ...interface{}) error {
	u.errors = append(u.errors, fmt.Sprintf(format, a...))
	return ErrAlreadyReported
}

func (u *testUI) ReportWarning(format string, a ...interface{}) {
	u.warnings = append(u.warnings, fmt.Sprintf(format, a...))
}

func (u *testUI) ReportInfo(format string, a ...interface{}) {
	u.infos = append(u.infos, fmt.Sprintf(format, a...))
}
