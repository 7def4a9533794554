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
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarFile struct {
	name       string
	content    string
	executable bool
}

func buildTarGz(t *testing.T, files []tarFile) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		mode := int64(0644)
		if f.executable {
			mode = 0755
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: f.name,
			Mode: mode,
			Size: int64(len(f.content)),
		}))
		_, err := tw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

var fooCabal = "name: foo\nversion: 1.0\n"

var releaseFiles = []tarFile{
	{"foo-1.0/foo.cabal", fooCabal, false},
	{"foo-1.0/src/Lib.hs", "module Lib where\n", false},
	{"foo-1.0/scripts/gen", "#!/bin/sh\n", true},
}

func Test_UnpackArchive(t *testing.T) {
	t.Run("TarGz", func(t *testing.T) {
		entries, err := unpackArchive(buildTarGz(t, releaseFiles))
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, fooCabal, string(entries["foo-1.0/foo.cabal"].data))
		assert.True(t, entries["foo-1.0/scripts/gen"].executable)
		assert.False(t, entries["foo-1.0/src/Lib.hs"].executable)
	})

	t.Run("PlainTar", func(t *testing.T) {
		var buf bytes.Buffer
		tw := tar.NewWriter(&buf)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "a.txt", Mode: 0644, Size: 5}))
		_, err := tw.Write([]byte("hello"))
		require.NoError(t, err)
		require.NoError(t, tw.Close())

		entries, err := unpackArchive(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, "hello", string(entries["a.txt"].data))
	})

	t.Run("Zip", func(t *testing.T) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create("foo.cabal")
		require.NoError(t, err)
		_, err = w.Write([]byte(fooCabal))
		require.NoError(t, err)
		require.NoError(t, zw.Close())

		entries, err := unpackArchive(buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, fooCabal, string(entries["foo.cabal"].data))
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := unpackArchive([]byte("this is not an archive, but long enough to sniff"))
		assert.Error(t, err)
	})
}

func Test_StripCommonRoot(t *testing.T) {
	t.Run("Strips", func(t *testing.T) {
		entries := map[string]archiveEntry{
			"foo-1.0/foo.cabal":  {data: []byte("a")},
			"foo-1.0/src/Lib.hs": {data: []byte("b")},
		}
		stripped := stripCommonRoot(entries)
		assert.Contains(t, stripped, "foo.cabal")
		assert.Contains(t, stripped, "src/Lib.hs")
	})

	t.Run("MixedRootsUntouched", func(t *testing.T) {
		entries := map[string]archiveEntry{
			"foo-1.0/foo.cabal": {data: []byte("a")},
			"other/file":        {data: []byte("b")},
		}
		assert.Equal(t, entries, stripCommonRoot(entries))
	})

	t.Run("TopLevelFileUntouched", func(t *testing.T) {
		entries := map[string]archiveEntry{
			"README":            {data: []byte("a")},
			"foo-1.0/foo.cabal": {data: []byte("b")},
		}
		assert.Equal(t, entries, stripCommonRoot(entries))
	})
}

func Test_SelectSubdir(t *testing.T) {
	entries := map[string]archiveEntry{
		"core/core.cabal":   {data: []byte("a")},
		"core/src/A.hs":     {data: []byte("b")},
		"extras/extra.yaml": {data: []byte("c")},
	}

	t.Run("Selects", func(t *testing.T) {
		selected, err := selectSubdir(entries, "core", "test")
		require.NoError(t, err)
		require.Len(t, selected, 2)
		assert.Contains(t, selected, "core.cabal")
		assert.Contains(t, selected, "src/A.hs")
	})

	t.Run("EmptyKeepsAll", func(t *testing.T) {
		selected, err := selectSubdir(entries, "", "test")
		require.NoError(t, err)
		assert.Equal(t, entries, selected)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := selectSubdir(entries, "nope", "test")
		require.Error(t, err)
		var ctxErr *ContextError
		assert.ErrorAs(t, err, &ctxErr)
	})
}

func Test_TreeFromEntries(t *testing.T) {
	store := NewFSStore(t.TempDir(), NullUI)

	t.Run("StoresBlobs", func(t *testing.T) {
		entries := map[string]archiveEntry{
			"foo.cabal": {data: []byte(fooCabal)},
			"bin/run":   {data: []byte("#!/bin/sh"), executable: true},
		}
		tree, err := treeFromEntries(store, entries, "test")
		require.NoError(t, err)
		require.Len(t, tree, 2)

		entry := tree[SafeFilePath("foo.cabal")]
		assert.Equal(t, FileTypeNormal, entry.Type)
		b, ok, err := store.Get(entry.Key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, fooCabal, string(b))

		assert.Equal(t, FileTypeExecutable, tree[SafeFilePath("bin/run")].Type)
	})

	t.Run("RejectsUnsafePaths", func(t *testing.T) {
		entries := map[string]archiveEntry{
			"../escape": {data: []byte("x")},
		}
		_, err := treeFromEntries(store, entries, "test")
		assert.Error(t, err)
	})
}

func Test_TreeFromDir(t *testing.T) {
	store := NewFSStore(t.TempDir(), NullUI)
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.cabal"), []byte(fooCabal), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "Lib.hs"), []byte("module Lib where\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run"), []byte("#!/bin/sh\n"), 0755))

	tree, err := TreeFromDir(store, dir)
	require.NoError(t, err)

	// VCS metadata stays out of the tree.
	assert.NotContains(t, tree, SafeFilePath(".git/HEAD"))
	require.Len(t, tree, 3)
	assert.Equal(t, FileTypeExecutable, tree[SafeFilePath("run")].Type)
	assert.Equal(t, FileTypeNormal, tree[SafeFilePath("src/Lib.hs")].Type)

	// The same directory content always produces the same tree key.
	again, err := TreeFromDir(store, dir)
	require.NoError(t, err)
	assert.Equal(t, tree.Key(), again.Key())
}

func Test_CabalIdentity(t *testing.T) {
	store := NewFSStore(t.TempDir(), NullUI)

	makeTree := func(t *testing.T, files map[string]string) Tree {
		entries := map[string]archiveEntry{}
		for p, content := range files {
			entries[p] = archiveEntry{data: []byte(content)}
		}
		tree, err := treeFromEntries(store, entries, "test")
		require.NoError(t, err)
		return tree
	}

	t.Run("Found", func(t *testing.T) {
		tree := makeTree(t, map[string]string{
			"foo.cabal":  fooCabal,
			"src/Lib.hs": "module Lib where\n",
		})
		name, v, key, err := cabalIdentity(store, tree, "test")
		require.NoError(t, err)
		assert.Equal(t, PackageName("foo"), name)
		assert.Equal(t, "1.0", v.String())
		assert.Equal(t, NewBlobKey([]byte(fooCabal)), key)
	})

	t.Run("IgnoresNestedCabalFiles", func(t *testing.T) {
		tree := makeTree(t, map[string]string{
			"foo.cabal":            fooCabal,
			"vendored/other.cabal": "name: other\nversion: 9.9\n",
		})
		name, _, _, err := cabalIdentity(store, tree, "test")
		require.NoError(t, err)
		assert.Equal(t, PackageName("foo"), name)
	})

	t.Run("Missing", func(t *testing.T) {
		tree := makeTree(t, map[string]string{"src/Lib.hs": "x"})
		_, _, _, err := cabalIdentity(store, tree, "test")
		assert.Error(t, err)
	})

	t.Run("Multiple", func(t *testing.T) {
		tree := makeTree(t, map[string]string{
			"foo.cabal": fooCabal,
			"bar.cabal": "name: bar\nversion: 2.0\n",
		})
		_, _, _, err := cabalIdentity(store, tree, "test")
		assert.Error(t, err)
	})
}

func Test_CabalVersion(t *testing.T) {
	t.Run("Simple", func(t *testing.T) {
		v, err := cabalVersion([]byte("name: foo\nversion: 1.2.3\n"))
		require.NoError(t, err)
		assert.Equal(t, "1.2.3", v.String())
	})

	t.Run("CaseInsensitive", func(t *testing.T) {
		v, err := cabalVersion([]byte("Name: foo\nVersion:  0.1\n"))
		require.NoError(t, err)
		assert.Equal(t, "0.1", v.String())
	})

	t.Run("IgnoresIndentedFields", func(t *testing.T) {
		// 'version' inside a stanza is not the package version.
		data := "name: foo\nlibrary\n  version: 9.9\nversion: 1.0\n"
		v, err := cabalVersion([]byte(data))
		require.NoError(t, err)
		assert.Equal(t, "1.0", v.String())
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := cabalVersion([]byte("name: foo\n"))
		assert.Error(t, err)
	})
}
