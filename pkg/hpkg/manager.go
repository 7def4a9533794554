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
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/haskellpkg/hpkg/pkg/tracking"
)

// Manager combines the store, the package index and the snapshot
// resolver behind the operations the commands need.
type Manager struct {
	cache    Cache
	store    Store
	index    *PackageIndex
	resolver *SnapshotResolver
	client   *http.Client
	ui       UI
	track    tracking.Track
	autosync bool
}

// NewManager creates a new manager.
// track may be nil, in which case no events are recorded.
func NewManager(cache Cache, store Store, index *PackageIndex, client *http.Client, autosync bool, ui UI, track tracking.Track) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	if track == nil {
		track = tracking.NopTrack
	}
	return &Manager{
		cache:    cache,
		store:    store,
		index:    index,
		resolver: NewSnapshotResolver(store, client, ui),
		client:   client,
		ui:       ui,
		track:    track,
		autosync: autosync,
	}
}

func (m *Manager) trackEvent(ctx context.Context, name string, properties map[string]string) {
	// Tracking failures never fail the operation.
	_ = m.track(ctx, &tracking.Event{
		Name:       name,
		Properties: properties,
	})
}

// maybeSync updates the index once per process when autosync is on.
func (m *Manager) maybeSync(ctx context.Context) error {
	if !m.autosync || m.index == nil {
		return nil
	}
	return m.index.EnsureUpdated(ctx)
}

// UpdateIndex unconditionally resyncs the package index.
func (m *Manager) UpdateIndex(ctx context.Context) error {
	m.trackEvent(ctx, "hpkg index update", nil)
	return m.index.Update(ctx)
}

// Versions returns all known versions of a package, ascending.
func (m *Manager) Versions(ctx context.Context, name PackageName) ([]Version, error) {
	if err := m.maybeSync(ctx); err != nil {
		return nil, err
	}
	return m.index.Versions(name)
}

// ResolveSnapshot parses a snapshot reference (shorthand, URL or file
// path), loads the document and flattens its parent chain.
func (m *Manager) ResolveSnapshot(ctx context.Context, str string, baseDir string) (*ResolvedSnapshot, error) {
	m.trackEvent(ctx, "hpkg snapshot resolve", map[string]string{
		"snapshot": str,
	})
	loc, err := ResolveSnapshotLocation(ParseSnapshotLocation(str), baseDir, nil)
	if err != nil {
		return nil, err
	}
	return m.resolver.Resolve(ctx, loc)
}

// FetchedPackage is a package whose source tree has been materialized
// in the store.
type FetchedPackage struct {
	Name     PackageName
	Version  Version
	Tree     Tree
	TreeKey  TreeKey
	CabalKey BlobKey
	Location PackageLocation
}

// FetchLocation materializes a package location: it downloads or reads
// the source, stores every file in the blob store, computes the tree
// key and checks all assertions the location carries.
func (m *Manager) FetchLocation(ctx context.Context, loc PackageLocation) (*FetchedPackage, error) {
	m.trackEvent(ctx, "hpkg package fetch", map[string]string{
		"location": loc.String(),
	})
	switch l := loc.(type) {
	case HackageLocation:
		return m.fetchHackage(ctx, l)
	case ArchiveLocation:
		return m.fetchArchive(ctx, l)
	case RepoLocation:
		return m.fetchRepo(ctx, l)
	case MutableLocation:
		return m.fetchDir(l)
	}
	return nil, &ContextError{Reason: "unknown location variant", Input: loc.String()}
}

func (m *Manager) httpGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{URL: url, Status: resp.Status}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	return b, nil
}

// finishTree stores the tree itself and packages the result.
func (m *Manager) finishTree(loc PackageLocation, tree Tree, name PackageName, v Version, cabalKey BlobKey) (*FetchedPackage, error) {
	if _, err := m.store.Put(tree.Encode()); err != nil {
		return nil, err
	}
	return &FetchedPackage{
		Name:     name,
		Version:  v,
		Tree:     tree,
		TreeKey:  tree.Key(),
		CabalKey: cabalKey,
		Location: loc,
	}, nil
}

func (m *Manager) fetchHackage(ctx context.Context, loc HackageLocation) (*FetchedPackage, error) {
	if err := m.maybeSync(ctx); err != nil {
		return nil, err
	}
	pir := loc.Ident
	desc := pir.String()

	// A pinned metadata revision can only be looked up in the index;
	// refuse before downloading anything.
	if _, isLatest := pir.Cabal.(CabalLatest); !isLatest && m.index == nil {
		return nil, &ContextError{
			Reason: "pinned metadata revision requires a package index",
			Input:  desc,
		}
	}

	url := fmt.Sprintf("%s%s-%s/%s-%s.tar.gz", HackageBaseURL, pir.Name, pir.Version, pir.Name, pir.Version)
	b, err := m.httpGet(ctx, url)
	if err != nil {
		return nil, err
	}
	entries, err := unpackArchive(b)
	if err != nil {
		return nil, err
	}
	entries = stripCommonRoot(entries)
	tree, err := treeFromEntries(m.store, entries, desc)
	if err != nil {
		return nil, err
	}

	// A pinned metadata revision replaces the cabal file that shipped
	// in the release tarball.
	if _, isLatest := pir.Cabal.(CabalLatest); !isLatest {
		cabalData, cabalKey, err := m.index.CabalFile(pir)
		if err != nil {
			return nil, err
		}
		if _, err := m.store.Put(cabalData); err != nil {
			return nil, err
		}
		cabalPath, err := NewSafeFilePath(fmt.Sprintf("%s.cabal", pir.Name))
		if err != nil {
			return nil, err
		}
		tree[cabalPath] = TreeEntry{Key: cabalKey, Type: FileTypeNormal}
	}

	name, v, cabalKey, err := cabalIdentity(m.store, tree, desc)
	if err != nil {
		return nil, err
	}
	if name != pir.Name {
		return nil, &MismatchError{Context: desc, Field: "package name", Expected: string(pir.Name), Actual: string(name)}
	}
	if !v.Equal(pir.Version) {
		return nil, &MismatchError{Context: desc, Field: "version", Expected: pir.Version.String(), Actual: v.String()}
	}
	if cfi, ok := pir.Cabal.(CabalHash); ok {
		expected := BlobKey{Hash: cfi.Hash, Size: cabalKey.Size}
		if cfi.Size != nil {
			expected.Size = *cfi.Size
		}
		if cabalKey != expected {
			return nil, &MismatchError{Context: desc, Field: "cabal file key", Expected: expected.String(), Actual: cabalKey.String()}
		}
	}
	if loc.TreeKey != nil && tree.Key() != *loc.TreeKey {
		return nil, &MismatchError{Context: desc, Field: "tree key", Expected: loc.TreeKey.String(), Actual: tree.Key().String()}
	}
	return m.finishTree(loc, tree, name, v, cabalKey)
}

func (m *Manager) fetchArchive(ctx context.Context, loc ArchiveLocation) (*FetchedPackage, error) {
	desc := loc.String()

	var b []byte
	var err error
	if isRemoteURL(loc.Archive.Location) {
		b, err = m.httpGet(ctx, loc.Archive.Location)
	} else {
		b, err = os.ReadFile(loc.Archive.Location)
	}
	if err != nil {
		return nil, err
	}

	if loc.Archive.Size != nil && int64(len(b)) != *loc.Archive.Size {
		return nil, &MismatchError{
			Context:  desc,
			Field:    "archive size",
			Expected: fmt.Sprintf("%d", *loc.Archive.Size),
			Actual:   fmt.Sprintf("%d", len(b)),
		}
	}
	if loc.Archive.Hash != nil {
		if actual := HashBytes(b); actual != *loc.Archive.Hash {
			return nil, &MismatchError{
				Context:  desc,
				Field:    "archive hash",
				Expected: loc.Archive.Hash.String(),
				Actual:   actual.String(),
			}
		}
	}

	entries, err := unpackArchive(b)
	if err != nil {
		return nil, err
	}
	entries = stripCommonRoot(entries)
	entries, err = selectSubdir(entries, loc.Metadata.Subdir, desc)
	if err != nil {
		return nil, err
	}
	tree, err := treeFromEntries(m.store, entries, desc)
	if err != nil {
		return nil, err
	}
	return m.verifyAndFinish(loc, loc.Metadata, tree, desc)
}

func (m *Manager) fetchRepo(ctx context.Context, loc RepoLocation) (*FetchedPackage, error) {
	desc := loc.String()

	checkout, err := os.MkdirTemp("", "hpkg-repo-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(checkout)

	if err := checkoutRepo(ctx, loc.Repo, checkout); err != nil {
		return nil, err
	}

	dir := checkout
	if loc.Metadata.Subdir != "" {
		dir = filepath.Join(checkout, filepath.FromSlash(loc.Metadata.Subdir))
		if !isDirectory(dir) {
			return nil, &ContextError{
				Reason: "subdirectory '" + loc.Metadata.Subdir + "' not present in " + desc,
				Input:  loc.Metadata.Subdir,
			}
		}
	}
	tree, err := TreeFromDir(m.store, dir)
	if err != nil {
		return nil, err
	}
	return m.verifyAndFinish(loc, loc.Metadata, tree, desc)
}

func (m *Manager) fetchDir(loc MutableLocation) (*FetchedPackage, error) {
	if !isDirectory(loc.Dir) {
		return nil, &ContextError{Reason: "not a directory", Input: loc.Dir}
	}
	tree, err := TreeFromDir(m.store, loc.Dir)
	if err != nil {
		return nil, err
	}
	name, v, cabalKey, err := cabalIdentity(m.store, tree, loc.Dir)
	if err != nil {
		return nil, err
	}
	return m.finishTree(loc, tree, name, v, cabalKey)
}

func (m *Manager) verifyAndFinish(loc PackageLocation, md PackageMetadata, tree Tree, desc string) (*FetchedPackage, error) {
	name, v, cabalKey, err := cabalIdentity(m.store, tree, desc)
	if err != nil {
		return nil, err
	}
	if err := md.Verify(desc, name, v, tree.Key(), cabalKey); err != nil {
		return nil, err
	}
	return m.finishTree(loc, tree, name, v, cabalKey)
}
