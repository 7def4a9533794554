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

import (
	"os"
)

func isDirectory(p string) bool {
	stat, err := os.Stat(p)
	return err == nil && stat.IsDir()
}

func isFile(p string) bool {
	stat, err := os.Stat(p)
	return err == nil && stat.Mode().IsRegular()
}
