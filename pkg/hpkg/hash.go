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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Hash is the sha256 digest of a blob, displayed as lowercase hex.
type Hash [sha256.Size]byte

// HashBytes computes the hash of b.
func HashBytes(b []byte) Hash {
	return sha256.Sum256(b)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex digest.
func ParseHash(str string) (Hash, error) {
	var h Hash
	if len(str) != hex.EncodedLen(sha256.Size) {
		return h, &ParseError{What: "hash", Input: str}
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return h, &ParseError{What: "hash", Input: str, Err: err}
	}
	copy(h[:], b)
	return h, nil
}

// BlobKey identifies a content blob by its hash and its declared size.
// Two blobs are equal iff both fields match; a hash match with a
// differing size is not equal, which catches truncation.
type BlobKey struct {
	Hash Hash
	Size int64
}

// NewBlobKey computes the key of b.
func NewBlobKey(b []byte) BlobKey {
	return BlobKey{
		Hash: HashBytes(b),
		Size: int64(len(b)),
	}
}

func (k BlobKey) String() string {
	return fmt.Sprintf("%s,%d", k.Hash, k.Size)
}

// ParseBlobKey parses the textual form "<hex-hash>,<decimal-size>".
func ParseBlobKey(str string) (BlobKey, error) {
	comma := strings.IndexByte(str, ',')
	if comma < 0 {
		return BlobKey{}, &ParseError{What: "blob key", Input: str}
	}
	h, err := ParseHash(str[:comma])
	if err != nil {
		return BlobKey{}, &ParseError{What: "blob key", Input: str, Err: err}
	}
	size, err := strconv.ParseInt(str[comma+1:], 10, 64)
	if err != nil || size < 0 {
		return BlobKey{}, &ParseError{What: "blob key", Input: str, Err: err}
	}
	return BlobKey{Hash: h, Size: size}, nil
}

// Verify checks b against the key. Returns a MismatchError carrying
// both keys if b is not the blob the key promises.
func (k BlobKey) Verify(context string, b []byte) error {
	actual := NewBlobKey(b)
	if actual != k {
		return &MismatchError{
			Context:  context,
			Field:    "blob key",
			Expected: k.String(),
			Actual:   actual.String(),
		}
	}
	return nil
}
