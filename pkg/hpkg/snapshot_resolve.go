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
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/haskellpkg/hpkg/pkg/set"
)

// ResolvedSnapshot is a snapshot with its whole parent chain
// flattened: a concrete compiler, and one effective location per
// package.
type ResolvedSnapshot struct {
	Compiler    WantedCompiler
	Name        string
	Locations   []PackageLocationImmutable
	Flags       map[PackageName]map[string]bool
	Hidden      map[PackageName]bool
	GhcOptions  map[PackageName][]string
	GlobalHints map[PackageName]*Version
}

// SnapshotResolver loads snapshot documents and flattens their parent
// chains. Documents fetched over HTTP are stored in the blob store, so
// a key-pinned snapshot is only downloaded once.
type SnapshotResolver struct {
	store  Store
	client *http.Client
	ui     UI
}

// NewSnapshotResolver creates a resolver. client may be nil, in which
// case http.DefaultClient is used.
func NewSnapshotResolver(store Store, client *http.Client, ui UI) *SnapshotResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &SnapshotResolver{
		store:  store,
		client: client,
		ui:     ui,
	}
}

// Resolve loads the snapshot at loc, recursively resolves its parents,
// and merges the chain into a single resolved snapshot.
func (r *SnapshotResolver) Resolve(ctx context.Context, loc SnapshotLocation) (*ResolvedSnapshot, error) {
	return r.resolve(ctx, loc, set.NewString())
}

func (r *SnapshotResolver) resolve(ctx context.Context, loc SnapshotLocation, visited set.String) (*ResolvedSnapshot, error) {
	rendered := loc.String()
	if visited.Contains(rendered) {
		return nil, r.ui.ReportError("Snapshot '%s' is part of a parent cycle", rendered)
	}
	visited.Add(rendered)

	switch l := loc.(type) {
	case CompilerLocation:
		return &ResolvedSnapshot{Compiler: l.Compiler}, nil

	case URLLocation:
		b, err := r.fetchDocument(ctx, l.URL, l.Key)
		if err != nil {
			return nil, err
		}
		return r.resolveDocument(ctx, b, "", l.Compiler, visited)

	case FileLocation:
		b, err := os.ReadFile(l.Path)
		if err != nil {
			return nil, r.ui.ReportError("Failed to read snapshot '%s': %v", l.Path, err)
		}
		return r.resolveDocument(ctx, b, filepath.Dir(l.Path), l.Compiler, visited)
	}
	return nil, &ContextError{Reason: "unknown snapshot location variant", Input: rendered}
}

// fetchDocument returns the bytes behind url. With a pinned key the
// store is consulted first and the download verified against the key
// before being trusted.
func (r *SnapshotResolver) fetchDocument(ctx context.Context, url string, key *BlobKey) ([]byte, error) {
	if key != nil {
		if b, ok, err := r.store.Get(*key); err != nil {
			return nil, err
		} else if ok {
			return b, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
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

	if key != nil {
		if err := key.Verify(url, b); err != nil {
			return nil, err
		}
	}
	if r.store != nil {
		if _, err := r.store.Put(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (r *SnapshotResolver) resolveDocument(ctx context.Context, b []byte, baseDir string, compiler *WantedCompiler, visited set.String) (*ResolvedSnapshot, error) {
	us, err := ParseSnapshot(b, r.ui)
	if err != nil {
		return nil, err
	}
	snapshot, err := us.Resolve(baseDir)
	if err != nil {
		return nil, err
	}

	parent, err := r.resolve(ctx, snapshot.Parent, visited)
	if err != nil {
		return nil, err
	}

	result := mergeSnapshot(parent, snapshot)
	// The location's own override wins over everything the chain set.
	if compiler != nil {
		result.Compiler = *compiler
	}
	return result, nil
}

// mergeSnapshot layers a child snapshot on top of its resolved parent.
// Dropped packages are removed first, then the child's locations
// replace same-package parent locations in place and new ones append
// in child order. The per-package maps merge key-wise with the child
// winning.
func mergeSnapshot(parent *ResolvedSnapshot, child *Snapshot) *ResolvedSnapshot {
	result := ResolvedSnapshot{
		Compiler: parent.Compiler,
		Name:     child.Name,
	}

	childIndex := map[string]PackageLocationImmutable{}
	for _, loc := range child.Locations {
		childIndex[mergeKey(loc)] = loc
	}

	used := set.NewString()
	for _, loc := range parent.Locations {
		key := mergeKey(loc)
		if name, ok := locationPackageName(loc); ok && child.Drop.Contains(string(name)) {
			continue
		}
		if replacement, ok := childIndex[key]; ok {
			result.Locations = append(result.Locations, replacement)
			used.Add(key)
			continue
		}
		result.Locations = append(result.Locations, loc)
	}
	for _, loc := range child.Locations {
		if used.Contains(mergeKey(loc)) {
			continue
		}
		result.Locations = append(result.Locations, loc)
	}

	result.Flags = mergeNestedMaps(parent.Flags, child.Flags)
	result.GhcOptions = mergeMaps(parent.GhcOptions, child.GhcOptions)
	result.Hidden = mergeMaps(parent.Hidden, child.Hidden)
	result.GlobalHints = mergeMaps(parent.GlobalHints, child.GlobalHints)
	return &result
}

func mergeMaps[V any](parent, child map[PackageName]V) map[PackageName]V {
	if len(parent) == 0 && len(child) == 0 {
		return nil
	}
	result := make(map[PackageName]V, len(parent)+len(child))
	for k, v := range parent {
		result[k] = v
	}
	for k, v := range child {
		result[k] = v
	}
	return result
}

// mergeNestedMaps merges flag maps. The merge is per package: a child
// entry for a package replaces the parent's whole flag set for it.
func mergeNestedMaps(parent, child map[PackageName]map[string]bool) map[PackageName]map[string]bool {
	return mergeMaps(parent, child)
}
