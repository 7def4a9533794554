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

package config

import (
	"os"
	"path/filepath"
)

const (
	// CacheDirEnv overrides where the store, index and snapshot caches live.
	CacheDirEnv = "HPKG_CACHE_DIR"
	// StorePathEnv overrides only the blob store location.
	StorePathEnv = "HPKG_STORE_PATH"
	// IndexPathEnv overrides only the package index location.
	IndexPathEnv = "HPKG_INDEX_PATH"
	// UserConfigDirEnv if set, will be the directory the user config will be loaded from.
	UserConfigDirEnv = "HPKG_USER_CONFIG_DIR"
)

func EnsureDirectory(dir string, err error) (string, error) {
	if err != nil {
		return dir, err
	}
	return dir, os.MkdirAll(dir, 0755)
}

// CachePath returns the root of the cache directory tree.
func CachePath() (string, error) {
	if p, ok := os.LookupEnv(CacheDirEnv); ok && p != "" {
		return p, nil
	}
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homedir, ".cache", "hpkg"), nil
}

func cachePathFor(envName string, subDir string) (string, error) {
	if p, ok := os.LookupEnv(envName); ok && p != "" {
		return p, nil
	}
	cachePath, err := CachePath()
	if err != nil {
		return "", err
	}
	return filepath.Join(cachePath, subDir), nil
}

// StorePath returns where the content-addressed blob store lives.
func StorePath() (string, error) {
	return cachePathFor(StorePathEnv, "store")
}

// IndexPath returns where the package index lives.
func IndexPath() (string, error) {
	return cachePathFor(IndexPathEnv, "index")
}
