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

// Package hpkg resolves where Haskell packages come from and what,
// exactly, those locations contain.
//
// Key concepts:
// * Blob: an immutable byte sequence, identified by a BlobKey (its
//   sha256 hash together with its size). Two blobs are the same iff
//   both fields match, which also catches truncated downloads.
// * Tree: the content-addressed listing of a package's source files.
//   A tree has one canonical byte encoding; its TreeKey is the blob
//   key of that encoding. Anything that decodes must re-encode to the
//   exact same bytes, so a tree key is a pure function of tree content.
// * Package location: where a package's source tree comes from. It is
//   either immutable (a Hackage release, an archive, a pinned VCS
//   commit) or mutable (a local directory that may change between
//   builds). Locations exist in an unresolved form, as authored in a
//   snapshot or project file, and a resolved form with absolute paths
//   and verified metadata.
// * Package index: a local mirror of the Hackage package repository.
//   It answers which versions of a package exist, and is refreshed
//   either through a git mirror or by downloading the index archive.
// * Snapshot: a named set of package locations plus per-package
//   overrides (flags, visibility, compiler options, version hints).
//   Snapshots inherit from a parent snapshot; the chain terminates at
//   a bare compiler. Resolving a snapshot flattens the chain into one
//   package set with a single entry per package name.
package hpkg
