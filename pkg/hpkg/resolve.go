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
	"net/url"
	"path/filepath"
)

// isRemoteURL returns whether str is a syntactically valid absolute
// http(s) URL.
func isRemoteURL(str string) bool {
	u, err := url.Parse(str)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// resolvePath makes p absolute. A relative path needs the directory of
// the declaring file; without it resolution fails rather than silently
// treating the path as absolute.
func resolvePath(p string, baseDir string) (string, error) {
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	if baseDir == "" {
		return "", &ContextError{
			Reason: "relative path requires the directory of the declaring file",
			Input:  p,
		}
	}
	return filepath.Clean(filepath.Join(baseDir, p)), nil
}

// ResolveLocation turns an unresolved immutable location into its
// concrete locations. Hackage locations pass through unchanged. An
// archive or repo with an explicit subdirectory list expands into one
// location per subdirectory; otherwise the single metadata-assertion
// form yields exactly one location. Relative archive paths resolve
// against baseDir.
func ResolveLocation(ul UnresolvedPackageLocationImmutable, baseDir string) ([]PackageLocationImmutable, error) {
	switch l := ul.(type) {
	case UnresolvedHackageLocation:
		return []PackageLocationImmutable{HackageLocation{
			Ident:   l.Ident,
			TreeKey: l.TreeKey,
		}}, nil

	case UnresolvedArchiveLocation:
		location := l.Location
		if !isRemoteURL(location) {
			resolved, err := resolvePath(location, baseDir)
			if err != nil {
				return nil, err
			}
			location = resolved
		}
		archive := Archive{
			Location: location,
			Hash:     l.Hash,
			Size:     l.Size,
		}
		if len(l.Subdirs) > 0 {
			result := make([]PackageLocationImmutable, 0, len(l.Subdirs))
			for _, subdir := range l.Subdirs {
				result = append(result, ArchiveLocation{
					Archive:  archive,
					Metadata: PackageMetadata{Subdir: subdir},
				})
			}
			return result, nil
		}
		return []PackageLocationImmutable{ArchiveLocation{
			Archive:  archive,
			Metadata: l.Metadata,
		}}, nil

	case UnresolvedRepoLocation:
		if len(l.Subdirs) > 0 {
			result := make([]PackageLocationImmutable, 0, len(l.Subdirs))
			for _, subdir := range l.Subdirs {
				result = append(result, RepoLocation{
					Repo:     l.Repo,
					Metadata: PackageMetadata{Subdir: subdir},
				})
			}
			return result, nil
		}
		return []PackageLocationImmutable{RepoLocation{
			Repo:     l.Repo,
			Metadata: l.Metadata,
		}}, nil
	}
	// The interface is sealed; no other variants exist.
	return nil, &ContextError{Reason: "unknown location variant", Input: "?"}
}

// ResolveMutableLocation resolves a possibly relative local directory.
func ResolveMutableLocation(ul UnresolvedMutableLocation, baseDir string) (MutableLocation, error) {
	dir, err := resolvePath(ul.Dir, baseDir)
	if err != nil {
		return MutableLocation{}, err
	}
	return MutableLocation{Dir: dir}, nil
}

// UnresolveLocation converts a resolved location back to its
// unresolved form. It is the inverse of ResolveLocation for a single
// location, ignoring values that can only be discovered empirically
// (such as a freshly computed tree key).
func UnresolveLocation(loc PackageLocationImmutable) UnresolvedPackageLocationImmutable {
	switch l := loc.(type) {
	case HackageLocation:
		return UnresolvedHackageLocation{
			Ident:   l.Ident,
			TreeKey: l.TreeKey,
		}
	case ArchiveLocation:
		return UnresolvedArchiveLocation{
			Location: l.Archive.Location,
			Hash:     l.Archive.Hash,
			Size:     l.Archive.Size,
			Metadata: l.Metadata,
		}
	case RepoLocation:
		return UnresolvedRepoLocation{
			Repo:     l.Repo,
			Metadata: l.Metadata,
		}
	}
	return nil
}
