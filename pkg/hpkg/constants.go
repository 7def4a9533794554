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

const (
	// IndexFileName is the file the package index is stored as, a plain
	// (uncompressed) tar of metadata files.
	IndexFileName = "01-index.tar"

	// DefaultIndexArchiveURL serves the index as a gzipped tarball.
	DefaultIndexArchiveURL = "https://hackage.haskell.org/01-index.tar.gz"

	// DefaultIndexGitURL mirrors the index metadata as a git repository.
	DefaultIndexGitURL = "https://github.com/commercialhaskell/all-cabal-files"

	// HackageBaseURL is where release tarballs are downloaded from.
	HackageBaseURL = "https://hackage.haskell.org/package/"

	// SnapshotsBaseURL hosts the curated lts/nightly snapshot documents.
	SnapshotsBaseURL = "https://raw.githubusercontent.com/commercialhaskell/stackage-snapshots/master/"

	// GithubRawBaseURL is the base for "github:user/repo:path" snapshot
	// shorthands.
	GithubRawBaseURL = "https://raw.githubusercontent.com/"
)
