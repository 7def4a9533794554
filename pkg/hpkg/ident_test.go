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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParsePackageName(t *testing.T) {
	valid := []string{"lens", "text", "base64-bytestring", "HUnit", "c14n", "3d-graphics-examples"}
	for _, str := range valid {
		name, err := ParsePackageName(str)
		assert.NoError(t, err, str)
		assert.Equal(t, PackageName(str), name)
	}

	invalid := []string{"", "-lens", "lens-", "foo--bar", "foo_bar", "foo bar", "foo.bar"}
	for _, str := range invalid {
		_, err := ParsePackageName(str)
		assert.Error(t, err, str)
	}
}

func Test_ParseVersion(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		for _, str := range []string{"0", "1", "1.0", "5.2.1", "0.0.0.0", "1.2.3.4.5"} {
			v, err := ParseVersion(str)
			require.NoError(t, err, str)
			assert.Equal(t, str, v.String())
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, str := range []string{"", "1.", ".1", "1..2", "1.2-beta", "v1.2", "1.2 "} {
			_, err := ParseVersion(str)
			assert.Error(t, err, str)
		}
	})

	t.Run("NumericOrdering", func(t *testing.T) {
		// 1.10 sorts after 1.9: components compare numerically.
		v9 := MustVersion("1.9")
		v10 := MustVersion("1.10")
		assert.True(t, v9.Less(v10))
		assert.False(t, v10.Less(v9))

		assert.True(t, MustVersion("0.9.9").Less(MustVersion("1")))
		assert.Equal(t, 0, MustVersion("2.0").Compare(MustVersion("2.0")))
	})
}

func Test_ParsePackageIdentifierRevision(t *testing.T) {
	hashHex := strings.Repeat("ab", 32)

	t.Run("Plain", func(t *testing.T) {
		pir, err := ParsePackageIdentifierRevision("lens-5.2")
		require.NoError(t, err)
		assert.Equal(t, PackageName("lens"), pir.Name)
		assert.Equal(t, "5.2", pir.Version.String())
		assert.IsType(t, CabalLatest{}, pir.Cabal)
		assert.Equal(t, "lens-5.2", pir.String())
	})

	t.Run("HyphenatedName", func(t *testing.T) {
		// Only the last dash separates name and version.
		pir, err := ParsePackageIdentifierRevision("base64-bytestring-1.2.1.0")
		require.NoError(t, err)
		assert.Equal(t, PackageName("base64-bytestring"), pir.Name)
		assert.Equal(t, "1.2.1.0", pir.Version.String())
	})

	t.Run("CabalHash", func(t *testing.T) {
		pir, err := ParsePackageIdentifierRevision("lens-5.2@sha256:" + hashHex + ",7123")
		require.NoError(t, err)
		cfi, ok := pir.Cabal.(CabalHash)
		require.True(t, ok)
		assert.Equal(t, hashHex, cfi.Hash.String())
		require.NotNil(t, cfi.Size)
		assert.Equal(t, int64(7123), *cfi.Size)
		assert.Equal(t, "lens-5.2@sha256:"+hashHex+",7123", pir.String())
	})

	t.Run("CabalHashNoSize", func(t *testing.T) {
		pir, err := ParsePackageIdentifierRevision("lens-5.2@sha256:" + hashHex)
		require.NoError(t, err)
		cfi, ok := pir.Cabal.(CabalHash)
		require.True(t, ok)
		assert.Nil(t, cfi.Size)
		assert.Equal(t, "lens-5.2@sha256:"+hashHex, pir.String())
	})

	t.Run("CabalRevision", func(t *testing.T) {
		pir, err := ParsePackageIdentifierRevision("lens-5.2@rev:3")
		require.NoError(t, err)
		cfi, ok := pir.Cabal.(CabalRevision)
		require.True(t, ok)
		assert.Equal(t, Revision(3), cfi.Revision)
		assert.Equal(t, "lens-5.2@rev:3", pir.String())
	})

	t.Run("Invalid", func(t *testing.T) {
		invalid := []string{
			"",
			"lens",          // missing version
			"lens-",         // empty version
			"-5.2",          // empty name
			"lens-5.x",      // bad version
			"lens-5.2@",     // empty cabal info
			"lens-5.2@foo:1",
			"lens-5.2@rev:x",
			"lens-5.2@rev:-1",
			"lens-5.2@sha256:abc",          // short hash
			"lens-5.2@sha256:" + hashHex + ",-5",
		}
		for _, str := range invalid {
			_, err := ParsePackageIdentifierRevision(str)
			assert.Error(t, err, str)
		}
	})
}
