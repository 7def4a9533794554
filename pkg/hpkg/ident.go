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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

var (
	packageNameRe = regexp.MustCompile(`^[a-zA-Z0-9]+(-[a-zA-Z0-9]+)*$`)
	versionRe     = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)
)

// PackageName is a validated package name: alphanumeric runs joined by
// single hyphens.
type PackageName string

// ParsePackageName validates str as a package name.
func ParsePackageName(str string) (PackageName, error) {
	if !packageNameRe.MatchString(str) {
		return "", &ParseError{What: "package name", Input: str}
	}
	return PackageName(str), nil
}

// Version is a validated package version: dot-separated non-negative
// integers. Ordering is component-wise numeric, not lexicographic.
type Version struct {
	str string
	v   *version.Version
}

// ParseVersion validates str against the version grammar.
func ParseVersion(str string) (Version, error) {
	if !versionRe.MatchString(str) {
		return Version{}, &ParseError{What: "version", Input: str}
	}
	v, err := version.NewVersion(str)
	if err != nil {
		return Version{}, &ParseError{What: "version", Input: str, Err: err}
	}
	return Version{str: str, v: v}, nil
}

// MustVersion is ParseVersion for known-good literals. Panics on error.
func MustVersion(str string) Version {
	v, err := ParseVersion(str)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return v.str
}

// IsZero returns whether v is the zero Version.
func (v Version) IsZero() bool {
	return v.v == nil
}

// Compare returns -1, 0 or 1 comparing component-wise.
func (v Version) Compare(other Version) int {
	return v.v.Compare(other.v)
}

// Less reports whether v orders before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// Equal reports component-wise equality.
func (v Version) Equal(other Version) bool {
	if v.v == nil || other.v == nil {
		return v.v == other.v
	}
	return v.v.Equal(other.v)
}

// Revision counts successive edits of a package's metadata file in the
// package repository. 0 is the original upload.
type Revision uint64

// CabalFileInfo pins which edit of a package's metadata file is meant.
// It is one of CabalLatest, CabalHash or CabalRevision.
type CabalFileInfo interface {
	cabalFileInfo()
	// String renders the "@..." suffix of the identifier, or "" for latest.
	String() string
}

// CabalLatest selects whatever edit is current. Explicitly not
// reproducible; pin a hash or revision for reproducible builds.
type CabalLatest struct{}

// CabalHash pins the metadata file by content hash, optionally with
// its size.
type CabalHash struct {
	Hash Hash
	Size *int64
}

// CabalRevision pins the metadata file by its repository edit counter.
type CabalRevision struct {
	Revision Revision
}

func (CabalLatest) cabalFileInfo()   {}
func (CabalHash) cabalFileInfo()     {}
func (CabalRevision) cabalFileInfo() {}

func (CabalLatest) String() string {
	return ""
}

func (c CabalHash) String() string {
	if c.Size != nil {
		return fmt.Sprintf("@sha256:%s,%d", c.Hash, *c.Size)
	}
	return fmt.Sprintf("@sha256:%s", c.Hash)
}

func (c CabalRevision) String() string {
	return fmt.Sprintf("@rev:%d", c.Revision)
}

// PackageIdentifierRevision names one exact Hackage release, together
// with the chosen edit of its metadata file.
type PackageIdentifierRevision struct {
	Name    PackageName
	Version Version
	Cabal   CabalFileInfo
}

// String renders "<name>-<version>" plus the cabal-info suffix.
func (pir PackageIdentifierRevision) String() string {
	return fmt.Sprintf("%s-%s%s", pir.Name, pir.Version, pir.Cabal)
}

// ParsePackageIdentifierRevision parses
// "<name>-<version>[@sha256:<hex>[,<size>]]" or
// "<name>-<version>[@rev:<decimal>]".
// Unlike the general cabal convention the version is mandatory.
func ParsePackageIdentifierRevision(str string) (PackageIdentifierRevision, error) {
	fail := func(err error) (PackageIdentifierRevision, error) {
		return PackageIdentifierRevision{}, &ParseError{What: "package identifier", Input: str, Err: err}
	}

	base := str
	cfiStr := ""
	hasCfi := false
	if at := strings.IndexByte(str, '@'); at >= 0 {
		base = str[:at]
		cfiStr = str[at+1:]
		hasCfi = true
	}

	dash := strings.LastIndexByte(base, '-')
	if dash <= 0 || dash == len(base)-1 {
		return fail(nil)
	}
	name, err := ParsePackageName(base[:dash])
	if err != nil {
		return fail(err)
	}
	v, err := ParseVersion(base[dash+1:])
	if err != nil {
		return fail(err)
	}

	var cfi CabalFileInfo = CabalLatest{}
	if hasCfi {
		switch {
		case strings.HasPrefix(cfiStr, "sha256:"):
			rest := strings.TrimPrefix(cfiStr, "sha256:")
			hexStr := rest
			var size *int64
			if comma := strings.IndexByte(rest, ','); comma >= 0 {
				hexStr = rest[:comma]
				n, err := strconv.ParseInt(rest[comma+1:], 10, 64)
				if err != nil || n < 0 {
					return fail(err)
				}
				size = &n
			}
			hash, err := ParseHash(hexStr)
			if err != nil {
				return fail(err)
			}
			cfi = CabalHash{Hash: hash, Size: size}
		case strings.HasPrefix(cfiStr, "rev:"):
			n, err := strconv.ParseUint(strings.TrimPrefix(cfiStr, "rev:"), 10, 64)
			if err != nil {
				return fail(err)
			}
			cfi = CabalRevision{Revision: Revision(n)}
		default:
			return fail(nil)
		}
	}

	return PackageIdentifierRevision{
		Name:    name,
		Version: v,
		Cabal:   cfi,
	}, nil
}
