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
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alexflint/go-filemutex"
	"github.com/gobwas/glob"
	"github.com/haskellpkg/hpkg/pkg/git"
	"github.com/klauspost/compress/gzip"
)

// PackageIndex is the local copy of the package repository's metadata:
// a plain tar of '<name>/<version>/...' entries, updated from either a
// git mirror or an archive URL.
type PackageIndex struct {
	dir        string
	gitURL     string
	archiveURL string
	client     *http.Client
	ui         UI
}

type indexOptions struct {
	gitURL     string
	archiveURL string
	client     *http.Client
}

// IndexOption defines the optional parameters for LoadPackageIndex.
type IndexOption interface {
	applyIndexOption(*indexOptions)
}

// WithIndexGitURL makes the index update from a git mirror of the
// metadata instead of the archive URL.
func WithIndexGitURL(url string) IndexOption {
	return indexGitURL(url)
}

type indexGitURL string

func (u indexGitURL) applyIndexOption(o *indexOptions) {
	o.gitURL = string(u)
}

// WithIndexArchiveURL overrides the archive URL the index updates from.
func WithIndexArchiveURL(url string) IndexOption {
	return indexArchiveURL(url)
}

type indexArchiveURL string

func (u indexArchiveURL) applyIndexOption(o *indexOptions) {
	o.archiveURL = string(u)
}

// WithIndexHTTPClient overrides the HTTP client used for archive
// downloads.
func WithIndexHTTPClient(client *http.Client) IndexOption {
	return indexHTTPClient{client}
}

type indexHTTPClient struct {
	client *http.Client
}

func (c indexHTTPClient) applyIndexOption(o *indexOptions) {
	o.client = c.client
}

// LoadPackageIndex opens the index in the cache's index directory,
// downloading it first if it doesn't exist yet.
func LoadPackageIndex(ctx context.Context, cache Cache, ui UI, options ...IndexOption) (*PackageIndex, error) {
	opts := &indexOptions{
		archiveURL: DefaultIndexArchiveURL,
		client:     http.DefaultClient,
	}
	for _, option := range options {
		option.applyIndexOption(opts)
	}

	idx := &PackageIndex{
		dir:        cache.IndexPath(),
		gitURL:     opts.gitURL,
		archiveURL: opts.archiveURL,
		client:     opts.client,
		ui:         ui,
	}
	if err := os.MkdirAll(idx.dir, 0755); err != nil {
		return nil, err
	}
	if !isFile(idx.indexFile()) {
		if err := idx.Update(ctx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *PackageIndex) indexFile() string {
	return filepath.Join(idx.dir, IndexFileName)
}

// Outdated reports whether the index may be missing upstream changes.
// There is no cheap freshness probe against the upstream, so this is
// conservatively always true; callers decide how often to resync.
func (idx *PackageIndex) Outdated() bool {
	return true
}

func (idx *PackageIndex) withFileLock(ctx context.Context, f func() error) error {
	// Make sure only one process updates the index at the same time.
	// The lock file lives next to the index directory so that it
	// survives the directory being replaced.
	lockP := filepath.Join(filepath.Dir(idx.dir), ".hpkg_sync.lock")
	err := os.MkdirAll(filepath.Dir(lockP), 0755)
	if err != nil {
		return err
	}
	m, err := filemutex.New(lockP)
	if err != nil {
		return err
	}

	unlocked := make(chan struct{})
	ctx, cancel := context.WithTimeout(ctx, time.Minute*3)
	defer cancel()

	// The following has a race condition:
	// We could get the lock, then enter the `default` select, but before
	// closing the channel, the ctx is done and the second select becomes
	// non-deterministic.
	// In that case we don't even unlock anymore.
	// It's a bad case, but better than not giving any error-message.
	go func() {
		m.Lock()
		select {
		case <-ctx.Done():
			m.Unlock()
		default:
			close(unlocked)
		}
	}()
	select {
	case <-unlocked:
		defer m.Unlock()
	case <-ctx.Done():
		return fmt.Errorf("unable to acquire sync lock %s", lockP)
	}

	return f()
}

// Update downloads the latest index metadata and atomically replaces
// the local copy.
func (idx *PackageIndex) Update(ctx context.Context) error {
	return idx.withFileLock(ctx, func() error {
		if idx.gitURL != "" {
			return idx.updateFromGit(ctx)
		}
		return idx.updateFromArchive(ctx)
	})
}

// indexBlocklist excludes git metadata and other hidden entries when a
// checkout is exported as the index tar.
var indexBlocklist = []glob.Glob{
	glob.MustCompile(".**", '/'),
}

func isBlocklisted(rel string) bool {
	for _, g := range indexBlocklist {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (idx *PackageIndex) updateFromGit(ctx context.Context) error {
	checkout := filepath.Join(idx.dir, "git")
	if isDirectory(checkout) {
		if err := git.Pull(checkout, git.PullOptions{}); err != nil {
			return err
		}
		if err := git.FetchTags(checkout); err != nil {
			return err
		}
	} else {
		var err error
		// The go-git library doesn't support cloning repositories that use 'main' as
		// default branch: https://github.com/go-git/go-git/issues/363
		// We therefore try different ones.
		// It's advantageous to try the correct one first.
		for _, branch := range []string{"master", "main", "trunk"} {
			_, branchErr := git.Clone(ctx, checkout, git.CloneOptions{
				URL:          idx.gitURL,
				SingleBranch: true,
				Branch:       branch,
			})
			if branchErr == nil {
				err = nil
				break
			}
			if err == nil || !strings.Contains(branchErr.Error(), "couldn't find remote ref") {
				err = branchErr
			}
		}
		if err != nil {
			return err
		}
	}
	return idx.exportCheckout(checkout)
}

// exportCheckout writes the checkout's metadata files as a plain tar
// and renames it over the index file.
func (idx *PackageIndex) exportCheckout(checkout string) error {
	tmp, err := os.CreateTemp(idx.dir, "index-*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	tw := tar.NewWriter(tmp)
	err = filepath.WalkDir(checkout, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(checkout, p)
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
		hdr := &tar.Header{
			Name: rel,
			Mode: 0644,
			Size: info.Size(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fail(err)
	}
	if err := tw.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, idx.indexFile()); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (idx *PackageIndex) updateFromArchive(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, idx.archiveURL, nil)
	if err != nil {
		return err
	}
	resp, err := idx.client.Do(req)
	if err != nil {
		return &TransportError{URL: idx.archiveURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &TransportError{URL: idx.archiveURL, Status: resp.Status}
	}

	var body io.Reader = resp.Body
	if strings.HasSuffix(idx.archiveURL, ".gz") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return &TransportError{URL: idx.archiveURL, Err: err}
		}
		defer gz.Close()
		body = gz
	}

	tmp, err := os.CreateTemp(idx.dir, "index-*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &TransportError{URL: idx.archiveURL, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, idx.indexFile()); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// foreachEntry streams the index tar, calling f for every regular file
// entry.
func (idx *PackageIndex) foreachEntry(f func(name string, r io.Reader) error) error {
	file, err := os.Open(idx.indexFile())
	if err != nil {
		return err
	}
	defer file.Close()

	tr := tar.NewReader(file)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := f(hdr.Name, tr); err != nil {
			return err
		}
	}
}

// entryPackageVersion splits an index entry path
// '<name>/<version>/<file>' and returns the name, version and file.
func entryPackageVersion(entry string) (string, string, string, bool) {
	parts := strings.Split(entry, "/")
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// Versions returns all known versions of the package in ascending
// order. An unknown package is an error, not an empty result.
func (idx *PackageIndex) Versions(name PackageName) ([]Version, error) {
	seen := map[string]Version{}
	// Only the '<name>/<version>/<name>.json' entry marks a release;
	// metadata files and foreign entries under the package's prefix
	// don't count.
	wantFile := string(name) + ".json"
	err := idx.foreachEntry(func(entry string, r io.Reader) error {
		pkg, versionStr, file, ok := entryPackageVersion(entry)
		if !ok || pkg != string(name) || file != wantFile {
			return nil
		}
		if _, ok := seen[versionStr]; ok {
			return nil
		}
		v, err := ParseVersion(versionStr)
		if err != nil {
			// Foreign entries with unparsable versions are skipped
			// rather than poisoning the whole index.
			return nil
		}
		seen[versionStr] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(seen) == 0 {
		return nil, &PackageNotFoundError{Name: name}
	}
	result := make([]Version, 0, len(seen))
	for _, v := range seen {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Less(result[j])
	})
	return result, nil
}

// CabalFile returns the metadata file contents for the identifier.
// Successive entries of the same path in the index tar are successive
// revisions; a CabalRevision selects by position, a CabalHash by
// content, and CabalLatest takes the last one.
func (idx *PackageIndex) CabalFile(pir PackageIdentifierRevision) ([]byte, BlobKey, error) {
	wantPath := fmt.Sprintf("%s/%s/%s.cabal", pir.Name, pir.Version, pir.Name)

	var found []byte
	count := Revision(0)
	err := idx.foreachEntry(func(entry string, r io.Reader) error {
		if entry != wantPath {
			return nil
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		switch cfi := pir.Cabal.(type) {
		case CabalLatest:
			found = b
		case CabalRevision:
			if count == cfi.Revision {
				found = b
			}
		case CabalHash:
			if HashBytes(b) == cfi.Hash {
				if cfi.Size == nil || *cfi.Size == int64(len(b)) {
					found = b
				}
			}
		}
		count++
		return nil
	})
	if err != nil {
		return nil, BlobKey{}, err
	}
	if count == 0 {
		return nil, BlobKey{}, &PackageNotFoundError{Name: pir.Name}
	}
	if found == nil {
		return nil, BlobKey{}, &ContextError{
			Reason: "requested metadata revision not present in the package index",
			Input:  pir.String(),
		}
	}
	return found, NewBlobKey(found), nil
}

// updateGate makes autosync at most one index update attempt per
// process, successful or not.
var updateGate struct {
	mu        sync.Mutex
	attempted bool
}

// EnsureUpdated updates the index at most once per process. Later
// calls are no-ops regardless of whether the first attempt succeeded.
func (idx *PackageIndex) EnsureUpdated(ctx context.Context) error {
	updateGate.mu.Lock()
	defer updateGate.mu.Unlock()
	if updateGate.attempted {
		return nil
	}
	updateGate.attempted = true
	if !idx.Outdated() {
		return nil
	}
	return idx.Update(ctx)
}
