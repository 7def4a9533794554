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
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexEntry struct {
	name    string
	content string
}

func buildIndexTar(t *testing.T, entries []indexEntry) []byte {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: e.name,
			Mode: 0644,
			Size: int64(len(e.content)),
		}))
		_, err := tw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func testIndex(t *testing.T, entries []indexEntry) *PackageIndex {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFileName), buildIndexTar(t, entries), 0644))
	return &PackageIndex{
		dir:    dir,
		client: http.DefaultClient,
		ui:     NullUI,
	}
}

var testIndexEntries = []indexEntry{
	{"foo/1.0/foo.json", "{}"},
	{"foo/1.0/foo.cabal", "name: foo\nversion: 1.0\n"},
	{"foo/1.1/foo.json", "{}"},
	{"foo/1.1/foo.cabal", "name: foo\nversion: 1.1\n"},
	// A later entry of the same path is the next metadata revision.
	{"foo/1.0/foo.cabal", "name: foo\nversion: 1.0\nsynopsis: revised\n"},
	{"bar/0.2/bar.json", "{}"},
	// Entries under a package's prefix that aren't its own '<name>.json'
	// must not count as releases.
	{"foo/9.9/bar.json", "{}"},
	{"foo/8.8/foo.cabal", "name: foo\nversion: 8.8\n"},
	{"preferred-versions", ""},
}

func Test_IndexVersions(t *testing.T) {
	idx := testIndex(t, testIndexEntries)

	t.Run("Ascending", func(t *testing.T) {
		versions, err := idx.Versions("foo")
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, "1.0", versions[0].String())
		assert.Equal(t, "1.1", versions[1].String())
	})

	t.Run("SingleVersion", func(t *testing.T) {
		versions, err := idx.Versions("bar")
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, "0.2", versions[0].String())
	})

	t.Run("IgnoresForeignEntries", func(t *testing.T) {
		// 'foo/9.9/bar.json' and a cabal file without a release entry
		// are both present in the fixture; neither is a foo release.
		versions, err := idx.Versions("foo")
		require.NoError(t, err)
		for _, v := range versions {
			assert.NotEqual(t, "9.9", v.String())
			assert.NotEqual(t, "8.8", v.String())
		}

		_, err = idx.Versions("preferred-versions")
		require.Error(t, err)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := idx.Versions("baz")
		require.Error(t, err)
		var notFound *PackageNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, PackageName("baz"), notFound.Name)
	})
}

func Test_IndexCabalFile(t *testing.T) {
	idx := testIndex(t, testIndexEntries)

	pir := func(t *testing.T, str string) PackageIdentifierRevision {
		p, err := ParsePackageIdentifierRevision(str)
		require.NoError(t, err)
		return p
	}

	t.Run("Latest", func(t *testing.T) {
		b, key, err := idx.CabalFile(pir(t, "foo-1.0"))
		require.NoError(t, err)
		assert.Contains(t, string(b), "synopsis: revised")
		assert.Equal(t, NewBlobKey(b), key)
	})

	t.Run("Revision", func(t *testing.T) {
		b, _, err := idx.CabalFile(pir(t, "foo-1.0@rev:0"))
		require.NoError(t, err)
		assert.NotContains(t, string(b), "synopsis")

		b, _, err = idx.CabalFile(pir(t, "foo-1.0@rev:1"))
		require.NoError(t, err)
		assert.Contains(t, string(b), "synopsis: revised")
	})

	t.Run("RevisionOutOfRange", func(t *testing.T) {
		_, _, err := idx.CabalFile(pir(t, "foo-1.0@rev:5"))
		require.Error(t, err)
		var ctxErr *ContextError
		assert.ErrorAs(t, err, &ctxErr)
	})

	t.Run("Hash", func(t *testing.T) {
		content := "name: foo\nversion: 1.0\n"
		hash := HashBytes([]byte(content))
		b, _, err := idx.CabalFile(pir(t, "foo-1.0@sha256:"+hash.String()))
		require.NoError(t, err)
		assert.Equal(t, content, string(b))
	})

	t.Run("HashNotPresent", func(t *testing.T) {
		hash := HashBytes([]byte("no such revision"))
		_, _, err := idx.CabalFile(pir(t, "foo-1.0@sha256:"+hash.String()))
		assert.Error(t, err)
	})

	t.Run("UnknownPackage", func(t *testing.T) {
		_, _, err := idx.CabalFile(pir(t, "baz-1.0"))
		require.Error(t, err)
		var notFound *PackageNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func Test_IndexUpdateFromArchive(t *testing.T) {
	raw := buildIndexTar(t, testIndexEntries)
	var gzipped bytes.Buffer
	gz := gzip.NewWriter(&gzipped)
	_, err := gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(gzipped.Bytes())
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.MkdirAll(dir, 0755))
	idx := &PackageIndex{
		dir:        dir,
		archiveURL: server.URL + "/01-index.tar.gz",
		client:     server.Client(),
		ui:         NullUI,
	}

	require.NoError(t, idx.Update(context.Background()))
	assert.FileExists(t, filepath.Join(dir, IndexFileName))

	// The downloaded index is decompressed and immediately usable.
	versions, err := idx.Versions("foo")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func Test_IndexOutdated(t *testing.T) {
	idx := testIndex(t, testIndexEntries)
	// There is no upstream freshness probe; the index always reports
	// itself as possibly stale.
	assert.True(t, idx.Outdated())
}
