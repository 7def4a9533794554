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
	"bytes"
	"crypto/sha256"
	"sort"
	"strconv"
	"strings"
)

// SafeFilePath is a validated, relative, UTF-8 path used as a key
// inside a Tree. It never contains a backslash, a doubled slash, a
// newline or a NUL byte, never starts with '/', and has no segment
// consisting only of dots (which rules out '.', '..' and look-alikes).
type SafeFilePath string

// NewSafeFilePath validates str and returns it as a SafeFilePath.
func NewSafeFilePath(str string) (SafeFilePath, error) {
	fail := func() (SafeFilePath, error) {
		return "", &ParseError{What: "file path", Input: str}
	}
	if str == "" {
		return fail()
	}
	if strings.ContainsAny(str, "\\\n\x00") {
		return fail()
	}
	if strings.HasPrefix(str, "/") {
		return fail()
	}
	if strings.Contains(str, "//") {
		return fail()
	}
	for _, segment := range strings.Split(str, "/") {
		// Also rejects empty segments, i.e. trailing slashes.
		if strings.Trim(segment, ".") == "" {
			return fail()
		}
	}
	return SafeFilePath(str), nil
}

// FileType distinguishes regular files from executables.
type FileType byte

const (
	FileTypeNormal     FileType = 'N'
	FileTypeExecutable FileType = 'X'
)

// IsValid returns whether the file type is one of the exported types.
func (t FileType) IsValid() bool {
	return t == FileTypeNormal || t == FileTypeExecutable
}

// TreeEntry is one file's content address and its executable bit.
type TreeEntry struct {
	Key  BlobKey
	Type FileType
}

// Tree maps safe relative paths to content-addressed entries.
// For encoding, iteration proceeds in ascending key order; the order
// is part of the hash input, not a display convenience.
type Tree map[SafeFilePath]TreeEntry

// TreeKey is the content address of an entire package source tree: the
// blob key of the tree's canonical encoding.
type TreeKey struct {
	BlobKey
}

// ParseTreeKey parses the textual form of a tree key.
func ParseTreeKey(str string) (TreeKey, error) {
	key, err := ParseBlobKey(str)
	if err != nil {
		return TreeKey{}, err
	}
	return TreeKey{key}, nil
}

const treeTag = "map:"

func writeNetstring(buf *bytes.Buffer, str string) {
	buf.WriteString(strconv.Itoa(len(str)))
	buf.WriteByte(':')
	buf.WriteString(str)
}

// Encode produces the canonical byte encoding of the tree:
// "map:" followed, in ascending path order, by the netstring of the
// path, the 32 raw hash bytes, the netstring of the decimal size, and
// the type tag byte.
func (t Tree) Encode() []byte {
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	buf.WriteString(treeTag)
	for _, p := range paths {
		entry := t[SafeFilePath(p)]
		writeNetstring(&buf, p)
		buf.Write(entry.Key.Hash[:])
		writeNetstring(&buf, strconv.FormatInt(entry.Key.Size, 10))
		buf.WriteByte(byte(entry.Type))
	}
	return buf.Bytes()
}

// Key computes the tree's content address.
func (t Tree) Key() TreeKey {
	return TreeKey{NewBlobKey(t.Encode())}
}

func readNetstring(b []byte) (string, []byte, bool) {
	colon := bytes.IndexByte(b, ':')
	if colon <= 0 {
		return "", nil, false
	}
	for _, c := range b[:colon] {
		if c < '0' || c > '9' {
			return "", nil, false
		}
	}
	n, err := strconv.Atoi(string(b[:colon]))
	// Compare by subtraction: a huge declared length must not wrap
	// colon+1+n around and slip past the bounds check.
	if err != nil || n < 0 || n > len(b)-colon-1 {
		return "", nil, false
	}
	return string(b[colon+1 : colon+1+n]), b[colon+1+n:], true
}

// DecodeTree parses the canonical encoding back into a Tree.
//
// Acceptance requires that re-encoding the parsed tree reproduces the
// input bytes exactly. This is an invariant, not a sanity check: the
// tree key must be a pure function of tree content, so any alternate
// encoding of the same content, even a structurally valid one, is
// rejected.
func DecodeTree(b []byte) (Tree, error) {
	fail := func() (Tree, error) {
		return nil, &ParseError{What: "tree encoding", Input: string(b)}
	}

	rest := b
	if !bytes.HasPrefix(rest, []byte(treeTag)) {
		return fail()
	}
	rest = rest[len(treeTag):]

	tree := Tree{}
	for len(rest) > 0 {
		pathStr, r, ok := readNetstring(rest)
		if !ok {
			return fail()
		}
		rest = r
		path, err := NewSafeFilePath(pathStr)
		if err != nil {
			return fail()
		}
		if len(rest) < sha256.Size {
			return fail()
		}
		var hash Hash
		copy(hash[:], rest[:sha256.Size])
		rest = rest[sha256.Size:]

		sizeStr, r, ok := readNetstring(rest)
		if !ok {
			return fail()
		}
		rest = r
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil || size < 0 {
			return fail()
		}
		if len(rest) < 1 {
			return fail()
		}
		fileType := FileType(rest[0])
		rest = rest[1:]
		if !fileType.IsValid() {
			return fail()
		}
		if _, ok := tree[path]; ok {
			return fail()
		}
		tree[path] = TreeEntry{
			Key:  BlobKey{Hash: hash, Size: size},
			Type: fileType,
		}
	}

	if !bytes.Equal(tree.Encode(), b) {
		return fail()
	}
	return tree, nil
}
