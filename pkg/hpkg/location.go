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
)

// PackageMetadata is a set of assertions about what a location must
// contain. Absent fields are not checked. Whenever the location's tree
// is actually fetched or computed, every present field is compared
// against the real value; the first disagreement is a hard error.
type PackageMetadata struct {
	Name     *PackageName
	Version  *Version
	TreeKey  *TreeKey
	CabalKey *BlobKey
	// Subdir selects a subdirectory of the archive or repository as
	// the package root. Empty means the top level.
	Subdir string
}

// Verify checks every present assertion against the actual values.
func (md PackageMetadata) Verify(context string, name PackageName, v Version, treeKey TreeKey, cabalKey BlobKey) error {
	if md.Name != nil && *md.Name != name {
		return &MismatchError{Context: context, Field: "package name", Expected: string(*md.Name), Actual: string(name)}
	}
	if md.Version != nil && !md.Version.Equal(v) {
		return &MismatchError{Context: context, Field: "version", Expected: md.Version.String(), Actual: v.String()}
	}
	if md.TreeKey != nil && *md.TreeKey != treeKey {
		return &MismatchError{Context: context, Field: "tree key", Expected: md.TreeKey.String(), Actual: treeKey.String()}
	}
	if md.CabalKey != nil && *md.CabalKey != cabalKey {
		return &MismatchError{Context: context, Field: "cabal file key", Expected: md.CabalKey.String(), Actual: cabalKey.String()}
	}
	return nil
}

// VCSKind specifies which version-control system backs a Repo.
type VCSKind string

const (
	VCSGit       VCSKind = "git"
	VCSMercurial VCSKind = "hg"
)

// IsValid returns whether the kind is one of the exported kinds.
func (k VCSKind) IsValid() bool {
	return k == VCSGit || k == VCSMercurial
}

// Archive points at an archive file by URL or local path, optionally
// with the expected hash and size of the archive bytes. Content behind
// a URL is immutable by convention; a local path is only acceptable
// where reproducibility is not required.
type Archive struct {
	// Location is a URL, or an absolute local path once resolved.
	Location string
	Hash     *Hash
	Size     *int64
}

// Repo is a version-control checkout pinned to a commit. Since the
// commit is fixed, a repo location is immutable by construction.
type Repo struct {
	URL    string
	Commit string
	Kind   VCSKind
}

// PackageLocation is where a package's source tree comes from: one of
// the immutable variants, or a mutable local directory.
type PackageLocation interface {
	packageLocation()
	String() string
}

// PackageLocationImmutable is a location whose content can never
// change: a Hackage release, an archive, or a pinned VCS commit.
type PackageLocationImmutable interface {
	PackageLocation
	immutableLocation()
}

// HackageLocation is a release on Hackage, optionally pinned to an
// expected tree key.
type HackageLocation struct {
	Ident   PackageIdentifierRevision
	TreeKey *TreeKey
}

// ArchiveLocation is an archive together with assertions about the
// package inside it.
type ArchiveLocation struct {
	Archive  Archive
	Metadata PackageMetadata
}

// RepoLocation is a pinned VCS checkout together with assertions about
// the package inside it.
type RepoLocation struct {
	Repo     Repo
	Metadata PackageMetadata
}

// MutableLocation is a resolved local directory whose content may
// change between builds.
type MutableLocation struct {
	Dir string
}

func (HackageLocation) packageLocation() {}
func (ArchiveLocation) packageLocation() {}
func (RepoLocation) packageLocation()    {}
func (MutableLocation) packageLocation() {}

func (HackageLocation) immutableLocation() {}
func (ArchiveLocation) immutableLocation() {}
func (RepoLocation) immutableLocation()    {}

func (l HackageLocation) String() string {
	return l.Ident.String()
}

func (l ArchiveLocation) String() string {
	if l.Metadata.Subdir != "" {
		return fmt.Sprintf("%s#%s", l.Archive.Location, l.Metadata.Subdir)
	}
	return l.Archive.Location
}

func (l RepoLocation) String() string {
	str := fmt.Sprintf("%s@%s", l.Repo.URL, l.Repo.Commit)
	if l.Metadata.Subdir != "" {
		str += "#" + l.Metadata.Subdir
	}
	return str
}

func (l MutableLocation) String() string {
	return l.Dir
}

// locationPackageName returns the package name a location is known to
// carry, if any. Hackage locations always know their name;
// archive/repo locations only when their metadata asserts one.
func locationPackageName(loc PackageLocationImmutable) (PackageName, bool) {
	switch l := loc.(type) {
	case HackageLocation:
		return l.Ident.Name, true
	case ArchiveLocation:
		if l.Metadata.Name != nil {
			return *l.Metadata.Name, true
		}
	case RepoLocation:
		if l.Metadata.Name != nil {
			return *l.Metadata.Name, true
		}
	}
	return "", false
}

// mergeKey is the key locations are deduplicated by during snapshot
// merging: the package name when known, otherwise the rendered
// location so that unnamed locations never collide with named ones.
func mergeKey(loc PackageLocationImmutable) string {
	if name, ok := locationPackageName(loc); ok {
		return string(name)
	}
	return "loc:" + loc.String()
}

// UnresolvedPackageLocation mirrors PackageLocation as authored in a
// snapshot or project file, before paths are made absolute and
// subdirectory lists are expanded.
type UnresolvedPackageLocation interface {
	unresolvedLocation()
}

// UnresolvedPackageLocationImmutable mirrors the immutable variants.
// Archive and repo forms may carry a list of subdirectories instead of
// a single metadata assertion; resolution expands the list into one
// concrete location per subdirectory.
type UnresolvedPackageLocationImmutable interface {
	UnresolvedPackageLocation
	unresolvedImmutableLocation()
}

type UnresolvedHackageLocation struct {
	Ident   PackageIdentifierRevision
	TreeKey *TreeKey
}

type UnresolvedArchiveLocation struct {
	// Location is a URL, or a local path that may still be relative.
	Location string
	Hash     *Hash
	Size     *int64
	// Subdirs, when non-empty, expands into one location per entry.
	Subdirs  []string
	Metadata PackageMetadata
}

type UnresolvedRepoLocation struct {
	Repo     Repo
	Subdirs  []string
	Metadata PackageMetadata
}

// UnresolvedMutableLocation is a local directory that may still be
// relative to the declaring file.
type UnresolvedMutableLocation struct {
	Dir string
}

func (UnresolvedHackageLocation) unresolvedLocation() {}
func (UnresolvedArchiveLocation) unresolvedLocation() {}
func (UnresolvedRepoLocation) unresolvedLocation()    {}
func (UnresolvedMutableLocation) unresolvedLocation() {}

func (UnresolvedHackageLocation) unresolvedImmutableLocation() {}
func (UnresolvedArchiveLocation) unresolvedImmutableLocation() {}
func (UnresolvedRepoLocation) unresolvedImmutableLocation()    {}
