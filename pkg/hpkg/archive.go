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
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

type archiveEntry struct {
	data       []byte
	executable bool
}

// unpackArchive parses an archive into its file entries. The format is
// sniffed from the first bytes: gzip-compressed tar, zip, or plain tar.
func unpackArchive(b []byte) (map[string]archiveEntry, error) {
	switch {
	case len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b:
		gz, err := gzip.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, &ParseError{What: "archive", Input: "gzip stream", Err: err}
		}
		defer gz.Close()
		return unpackTar(gz)
	case len(b) >= 4 && bytes.HasPrefix(b, []byte("PK\x03\x04")):
		return unpackZip(b)
	default:
		return unpackTar(bytes.NewReader(b))
	}
}

func unpackTar(r io.Reader) (map[string]archiveEntry, error) {
	entries := map[string]archiveEntry{}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, &ParseError{What: "archive", Input: "tar stream", Err: err}
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, &ParseError{What: "archive", Input: hdr.Name, Err: err}
		}
		entries[filepath.ToSlash(hdr.Name)] = archiveEntry{
			data:       data,
			executable: hdr.Mode&0111 != 0,
		}
	}
}

func unpackZip(b []byte) (map[string]archiveEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, &ParseError{What: "archive", Input: "zip stream", Err: err}
	}
	entries := map[string]archiveEntry{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, &ParseError{What: "archive", Input: f.Name, Err: err}
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &ParseError{What: "archive", Input: f.Name, Err: err}
		}
		entries[f.Name] = archiveEntry{
			data:       data,
			executable: f.Mode()&0111 != 0,
		}
	}
	return entries, nil
}

// stripCommonRoot removes a single shared top-level directory, the
// usual '<name>-<version>/' wrapper of release tarballs. Entries stay
// untouched when they don't all share one.
func stripCommonRoot(entries map[string]archiveEntry) map[string]archiveEntry {
	root := ""
	for p := range entries {
		slash := strings.IndexByte(p, '/')
		if slash <= 0 {
			return entries
		}
		if root == "" {
			root = p[:slash]
		} else if root != p[:slash] {
			return entries
		}
	}
	if root == "" {
		return entries
	}
	result := make(map[string]archiveEntry, len(entries))
	for p, e := range entries {
		result[p[len(root)+1:]] = e
	}
	return result
}

// selectSubdir narrows the entries to those below subdir, with the
// prefix stripped. An empty subdir keeps everything.
func selectSubdir(entries map[string]archiveEntry, subdir string, desc string) (map[string]archiveEntry, error) {
	if subdir == "" {
		return entries, nil
	}
	prefix := strings.TrimSuffix(subdir, "/") + "/"
	result := map[string]archiveEntry{}
	for p, e := range entries {
		if strings.HasPrefix(p, prefix) {
			result[p[len(prefix):]] = e
		}
	}
	if len(result) == 0 {
		return nil, &ContextError{
			Reason: "subdirectory '" + subdir + "' not present in " + desc,
			Input:  subdir,
		}
	}
	return result, nil
}

// treeFromEntries stores every entry's content as a blob and builds
// the tree over the resulting keys. Entries whose paths don't satisfy
// the tree's path rules are rejected.
func treeFromEntries(store Store, entries map[string]archiveEntry, desc string) (Tree, error) {
	tree := Tree{}
	for p, e := range entries {
		safe, err := NewSafeFilePath(p)
		if err != nil {
			return nil, &ContextError{
				Reason: "unsafe file path in " + desc,
				Input:  p,
			}
		}
		key, err := store.Put(e.data)
		if err != nil {
			return nil, err
		}
		fileType := FileTypeNormal
		if e.executable {
			fileType = FileTypeExecutable
		}
		tree[safe] = TreeEntry{Key: key, Type: fileType}
	}
	return tree, nil
}

// TreeFromDir builds a content-addressed tree from a directory on
// disk, storing every file's content as a blob. Hidden entries are
// excluded, which keeps VCS metadata out of the tree.
func TreeFromDir(store Store, dir string) (Tree, error) {
	entries := map[string]archiveEntry{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if isBlocklisted(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		entries[rel] = archiveEntry{
			data:       data,
			executable: info.Mode()&0111 != 0,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return treeFromEntries(store, entries, dir)
}

// cabalIdentity determines the package's name and version from the
// single '<name>.cabal' file at the tree root. The name comes from the
// file name; the version from the file's 'version:' field.
func cabalIdentity(store Store, tree Tree, desc string) (PackageName, Version, BlobKey, error) {
	fail := func(reason string) (PackageName, Version, BlobKey, error) {
		return "", Version{}, BlobKey{}, &ContextError{Reason: reason, Input: desc}
	}

	cabalPath := SafeFilePath("")
	for p := range tree {
		if strings.ContainsRune(string(p), '/') {
			continue
		}
		if strings.HasSuffix(string(p), ".cabal") {
			if cabalPath != "" {
				return fail("multiple cabal files at the package root")
			}
			cabalPath = p
		}
	}
	if cabalPath == "" {
		return fail("no cabal file at the package root")
	}

	name, err := ParsePackageName(strings.TrimSuffix(string(cabalPath), ".cabal"))
	if err != nil {
		return "", Version{}, BlobKey{}, err
	}

	entry := tree[cabalPath]
	data, ok, err := store.Get(entry.Key)
	if err != nil {
		return "", Version{}, BlobKey{}, err
	}
	if !ok {
		return fail("cabal file blob missing from the store")
	}

	v, err := cabalVersion(data)
	if err != nil {
		return "", Version{}, BlobKey{}, err
	}
	return name, v, entry.Key, nil
}

// cabalVersion extracts the top-level 'version:' field.
func cabalVersion(data []byte) (Version, error) {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimRight(line, "\r")
		// Only top-level fields; indented lines belong to stanzas.
		if trimmed == "" || trimmed[0] == ' ' || trimmed[0] == '\t' {
			continue
		}
		field, value, found := strings.Cut(trimmed, ":")
		if !found {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(field), "version") {
			return ParseVersion(strings.TrimSpace(value))
		}
	}
	return Version{}, &ParseError{What: "cabal file", Input: "missing version field"}
}
