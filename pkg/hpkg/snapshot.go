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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/haskellpkg/hpkg/pkg/set"
	"gopkg.in/yaml.v2"
)

// WantedCompiler is a specific compiler release: a plain GHC version,
// or a GHCJS version paired with the GHC it was built against.
type WantedCompiler struct {
	GHC Version
	// GHCJS is set for "ghcjs-<v>_ghc-<v>" compilers.
	GHCJS *Version
}

// ParseWantedCompiler parses "ghc-<version>" or
// "ghcjs-<version>_ghc-<version>".
func ParseWantedCompiler(str string) (WantedCompiler, error) {
	fail := func(err error) (WantedCompiler, error) {
		return WantedCompiler{}, &ParseError{What: "compiler", Input: str, Err: err}
	}
	if rest, ok := strings.CutPrefix(str, "ghcjs-"); ok {
		jsStr, ghcStr, found := strings.Cut(rest, "_ghc-")
		if !found {
			return fail(nil)
		}
		js, err := ParseVersion(jsStr)
		if err != nil {
			return fail(err)
		}
		ghc, err := ParseVersion(ghcStr)
		if err != nil {
			return fail(err)
		}
		return WantedCompiler{GHC: ghc, GHCJS: &js}, nil
	}
	if rest, ok := strings.CutPrefix(str, "ghc-"); ok {
		ghc, err := ParseVersion(rest)
		if err != nil {
			return fail(err)
		}
		return WantedCompiler{GHC: ghc}, nil
	}
	return fail(nil)
}

func (c WantedCompiler) String() string {
	if c.GHCJS != nil {
		return fmt.Sprintf("ghcjs-%s_ghc-%s", c.GHCJS, c.GHC)
	}
	return fmt.Sprintf("ghc-%s", c.GHC)
}

// SnapshotLocation is a resolved reference to a snapshot document, or
// a bare compiler terminating an inheritance chain.
type SnapshotLocation interface {
	snapshotLocation()
	String() string
}

// CompilerLocation is the terminal of every snapshot parent chain. It
// contributes no packages and no overrides.
type CompilerLocation struct {
	Compiler WantedCompiler
}

// URLLocation is a snapshot document behind a URL, optionally pinned
// to the expected blob key of the document bytes.
type URLLocation struct {
	URL string
	Key *BlobKey
	// Compiler overrides the compiler of the loaded snapshot.
	Compiler *WantedCompiler
}

// FileLocation is a snapshot document at a resolved absolute path.
type FileLocation struct {
	Path     string
	Compiler *WantedCompiler
}

func (CompilerLocation) snapshotLocation() {}
func (URLLocation) snapshotLocation()      {}
func (FileLocation) snapshotLocation()     {}

func (l CompilerLocation) String() string {
	return l.Compiler.String()
}

func (l URLLocation) String() string {
	return l.URL
}

func (l FileLocation) String() string {
	return l.Path
}

// UnresolvedSnapshotLocation is a snapshot reference as authored,
// before file paths are made absolute and compiler overrides applied.
type UnresolvedSnapshotLocation interface {
	unresolvedSnapshotLocation()
	String() string
}

type UnresolvedCompilerLocation struct {
	Compiler WantedCompiler
}

type UnresolvedURLLocation struct {
	URL string
	Key *BlobKey
}

type UnresolvedFileLocation struct {
	Path string
}

func (UnresolvedCompilerLocation) unresolvedSnapshotLocation() {}
func (UnresolvedURLLocation) unresolvedSnapshotLocation()      {}
func (UnresolvedFileLocation) unresolvedSnapshotLocation()     {}

func (l UnresolvedCompilerLocation) String() string {
	return l.Compiler.String()
}

func (l UnresolvedURLLocation) String() string {
	return l.URL
}

func (l UnresolvedFileLocation) String() string {
	return l.Path
}

var (
	ltsRe     = regexp.MustCompile(`^lts-([0-9]+)\.([0-9]+)$`)
	nightlyRe = regexp.MustCompile(`^nightly-([0-9]{4})-([0-9]{2})-([0-9]{2})$`)
	githubRe  = regexp.MustCompile(`^github:([^/:]+)/([^/:]+):(.+)$`)
)

// ParseSnapshotLocation parses the snapshot shorthand grammar. The
// alternatives are tried in a fixed order and the first match wins:
// a bare compiler, "lts-<major>.<minor>", "nightly-<YYYY-MM-DD>",
// "github:<user>/<repo>:<path>", an absolute URL, and finally a local
// file path. The file-path fallback is unconditional; this function
// never fails.
func ParseSnapshotLocation(str string) UnresolvedSnapshotLocation {
	if compiler, err := ParseWantedCompiler(str); err == nil {
		return UnresolvedCompilerLocation{Compiler: compiler}
	}
	if m := ltsRe.FindStringSubmatch(str); m != nil {
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		return UnresolvedURLLocation{
			URL: fmt.Sprintf("%slts/%d/%d.yaml", SnapshotsBaseURL, major, minor),
		}
	}
	if m := nightlyRe.FindStringSubmatch(str); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return UnresolvedURLLocation{
			URL: fmt.Sprintf("%snightly/%d/%d/%d.yaml", SnapshotsBaseURL, year, month, day),
		}
	}
	if m := githubRe.FindStringSubmatch(str); m != nil {
		return UnresolvedURLLocation{
			URL: fmt.Sprintf("%s%s/%s/master/%s", GithubRawBaseURL, m[1], m[2], m[3]),
		}
	}
	if isRemoteURL(str) {
		return UnresolvedURLLocation{URL: str}
	}
	return UnresolvedFileLocation{Path: str}
}

// ResolveSnapshotLocation resolves an unresolved snapshot location.
// Combining a bare compiler with a compiler override is ambiguous and
// fails hard. A relative file path requires baseDir, the directory of
// the declaring file.
func ResolveSnapshotLocation(ul UnresolvedSnapshotLocation, baseDir string, compiler *WantedCompiler) (SnapshotLocation, error) {
	switch l := ul.(type) {
	case UnresolvedCompilerLocation:
		if compiler != nil {
			return nil, &ContextError{
				Reason: "compiler override is ambiguous for a bare compiler snapshot",
				Input:  l.String(),
			}
		}
		return CompilerLocation{Compiler: l.Compiler}, nil
	case UnresolvedURLLocation:
		return URLLocation{URL: l.URL, Key: l.Key, Compiler: compiler}, nil
	case UnresolvedFileLocation:
		path, err := resolvePath(l.Path, baseDir)
		if err != nil {
			return nil, err
		}
		return FileLocation{Path: path, Compiler: compiler}, nil
	}
	return nil, &ContextError{Reason: "unknown snapshot location variant", Input: ul.String()}
}

// Snapshot is a parsed snapshot document with resolved package
// locations, before its parent chain has been flattened.
type Snapshot struct {
	Parent    SnapshotLocation
	Name      string
	Locations []PackageLocationImmutable
	// Drop removes packages inherited from the parent, by name.
	Drop        set.String
	Flags       map[PackageName]map[string]bool
	Hidden      map[PackageName]bool
	GhcOptions  map[PackageName][]string
	GlobalHints map[PackageName]*Version
}

// UnresolvedSnapshot mirrors Snapshot as parsed from a document,
// before location resolution.
type UnresolvedSnapshot struct {
	Parent UnresolvedSnapshotLocation
	// Compiler is the override attached to the resolver field, if any.
	Compiler    *WantedCompiler
	Name        string
	Locations   []UnresolvedPackageLocationImmutable
	Drop        set.String
	Flags       map[PackageName]map[string]bool
	Hidden      map[PackageName]bool
	GhcOptions  map[PackageName][]string
	GlobalHints map[PackageName]*Version
}

// resolverDoc is the "resolver" field of a snapshot document: either a
// shorthand string, or an object with url/sha256/size/compiler.
type resolverDoc struct {
	shorthand string
	url       string
	sha256    string
	size      *int64
	compiler  string
}

func (r *resolverDoc) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err == nil {
		r.shorthand = str
		return nil
	}
	var obj struct {
		URL      string `yaml:"url"`
		Sha256   string `yaml:"sha256"`
		Size     *int64 `yaml:"size"`
		Compiler string `yaml:"compiler"`
	}
	if err := unmarshal(&obj); err != nil {
		return err
	}
	r.url = obj.URL
	r.sha256 = obj.Sha256
	r.size = obj.Size
	r.compiler = obj.Compiler
	return nil
}

// packageDoc is one entry of the "packages" list: either a hackage
// identifier string, or an object describing a hackage, archive or
// repo location.
type packageDoc struct {
	hackage string
	url     string
	git     string
	hg      string
	commit  string
	sha256  string
	size    *int64
	subdirs []string
	subdir  string
	name    string
	version string
	treeKey string
}

func (p *packageDoc) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err == nil {
		p.hackage = str
		return nil
	}
	var obj struct {
		Hackage string   `yaml:"hackage"`
		URL     string   `yaml:"url"`
		Archive string   `yaml:"archive"`
		Git     string   `yaml:"git"`
		Hg      string   `yaml:"hg"`
		Commit  string   `yaml:"commit"`
		Sha256  string   `yaml:"sha256"`
		Size    *int64   `yaml:"size"`
		Subdirs []string `yaml:"subdirs"`
		Subdir  string   `yaml:"subdir"`
		Name    string   `yaml:"name"`
		Version string   `yaml:"version"`
		TreeKey string   `yaml:"pantry-tree"`
	}
	if err := unmarshal(&obj); err != nil {
		return err
	}
	p.hackage = obj.Hackage
	p.url = obj.URL
	if p.url == "" {
		p.url = obj.Archive
	}
	p.git = obj.Git
	p.hg = obj.Hg
	p.commit = obj.Commit
	p.sha256 = obj.Sha256
	p.size = obj.Size
	p.subdirs = obj.Subdirs
	p.subdir = obj.Subdir
	p.name = obj.Name
	p.version = obj.Version
	p.treeKey = obj.TreeKey
	return nil
}

type snapshotDoc struct {
	Name         string                     `yaml:"name"`
	Compiler     string                     `yaml:"compiler,omitempty"`
	Resolver     *resolverDoc               `yaml:"resolver,omitempty"`
	Packages     []packageDoc               `yaml:"packages,omitempty"`
	DropPackages []string                   `yaml:"drop-packages,omitempty"`
	Flags        map[string]map[string]bool `yaml:"flags,omitempty"`
	Hidden       map[string]bool            `yaml:"hidden,omitempty"`
	GhcOptions   map[string][]string        `yaml:"ghc-options,omitempty"`
	GlobalHints  map[string]*string         `yaml:"global-hints,omitempty"`
}

func (p *packageDoc) metadata() (PackageMetadata, error) {
	md := PackageMetadata{Subdir: p.subdir}
	if p.name != "" {
		name, err := ParsePackageName(p.name)
		if err != nil {
			return md, err
		}
		md.Name = &name
	}
	if p.version != "" {
		v, err := ParseVersion(p.version)
		if err != nil {
			return md, err
		}
		md.Version = &v
	}
	if p.treeKey != "" {
		key, err := ParseTreeKey(p.treeKey)
		if err != nil {
			return md, err
		}
		md.TreeKey = &key
	}
	return md, nil
}

func (p *packageDoc) toLocation() (UnresolvedPackageLocationImmutable, error) {
	switch {
	case p.hackage != "":
		pir, err := ParsePackageIdentifierRevision(p.hackage)
		if err != nil {
			return nil, err
		}
		loc := UnresolvedHackageLocation{Ident: pir}
		if p.treeKey != "" {
			key, err := ParseTreeKey(p.treeKey)
			if err != nil {
				return nil, err
			}
			loc.TreeKey = &key
		}
		return loc, nil

	case p.url != "":
		loc := UnresolvedArchiveLocation{
			Location: p.url,
			Subdirs:  p.subdirs,
			Size:     p.size,
		}
		if p.sha256 != "" {
			hash, err := ParseHash(p.sha256)
			if err != nil {
				return nil, err
			}
			loc.Hash = &hash
		}
		md, err := p.metadata()
		if err != nil {
			return nil, err
		}
		loc.Metadata = md
		return loc, nil

	case p.git != "" || p.hg != "":
		repo := Repo{URL: p.git, Commit: p.commit, Kind: VCSGit}
		if p.hg != "" {
			repo = Repo{URL: p.hg, Commit: p.commit, Kind: VCSMercurial}
		}
		if repo.Commit == "" {
			return nil, &ParseError{What: "repo location", Input: repo.URL, Err: fmt.Errorf("missing commit")}
		}
		md, err := p.metadata()
		if err != nil {
			return nil, err
		}
		return UnresolvedRepoLocation{
			Repo:     repo,
			Subdirs:  p.subdirs,
			Metadata: md,
		}, nil
	}
	return nil, &ParseError{What: "package location", Input: "?", Err: fmt.Errorf("missing hackage, url, git or hg field")}
}

// ParseSnapshot parses a snapshot document. The document must carry a
// name and exactly one of "compiler" and "resolver".
func ParseSnapshot(b []byte, ui UI) (*UnresolvedSnapshot, error) {
	var doc snapshotDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, ui.ReportError("Failed to parse snapshot document: %v", err)
	}

	if doc.Name == "" {
		return nil, ui.ReportError("Snapshot document is missing a name")
	}
	if (doc.Compiler == "") == (doc.Resolver == nil) {
		return nil, ui.ReportError("Snapshot '%s' needs exactly one of 'compiler' and 'resolver'", doc.Name)
	}

	result := UnresolvedSnapshot{Name: doc.Name}

	if doc.Compiler != "" {
		compiler, err := ParseWantedCompiler(doc.Compiler)
		if err != nil {
			return nil, err
		}
		result.Parent = UnresolvedCompilerLocation{Compiler: compiler}
	} else {
		r := doc.Resolver
		if r.shorthand != "" {
			result.Parent = ParseSnapshotLocation(r.shorthand)
		} else if r.url != "" {
			loc := UnresolvedURLLocation{URL: r.url}
			if r.sha256 != "" {
				hash, err := ParseHash(r.sha256)
				if err != nil {
					return nil, err
				}
				if r.size == nil {
					return nil, ui.ReportError("Snapshot '%s': resolver sha256 requires a size", doc.Name)
				}
				loc.Key = &BlobKey{Hash: hash, Size: *r.size}
			}
			result.Parent = loc
		} else {
			return nil, ui.ReportError("Snapshot '%s' has an empty resolver", doc.Name)
		}
		if r.compiler != "" {
			compiler, err := ParseWantedCompiler(r.compiler)
			if err != nil {
				return nil, err
			}
			result.Compiler = &compiler
		}
	}

	for i := range doc.Packages {
		loc, err := doc.Packages[i].toLocation()
		if err != nil {
			return nil, err
		}
		result.Locations = append(result.Locations, loc)
	}

	result.Drop = set.NewString()
	for _, name := range doc.DropPackages {
		if _, err := ParsePackageName(name); err != nil {
			return nil, err
		}
		result.Drop.Add(name)
	}

	if len(doc.Flags) > 0 {
		result.Flags = map[PackageName]map[string]bool{}
		for name, flags := range doc.Flags {
			pkg, err := ParsePackageName(name)
			if err != nil {
				return nil, err
			}
			result.Flags[pkg] = flags
		}
	}
	if len(doc.Hidden) > 0 {
		result.Hidden = map[PackageName]bool{}
		for name, hidden := range doc.Hidden {
			pkg, err := ParsePackageName(name)
			if err != nil {
				return nil, err
			}
			result.Hidden[pkg] = hidden
		}
	}
	if len(doc.GhcOptions) > 0 {
		result.GhcOptions = map[PackageName][]string{}
		for name, opts := range doc.GhcOptions {
			pkg, err := ParsePackageName(name)
			if err != nil {
				return nil, err
			}
			result.GhcOptions[pkg] = opts
		}
	}
	if len(doc.GlobalHints) > 0 {
		result.GlobalHints = map[PackageName]*Version{}
		for name, hint := range doc.GlobalHints {
			pkg, err := ParsePackageName(name)
			if err != nil {
				return nil, err
			}
			var v *Version
			if hint != nil {
				parsed, err := ParseVersion(*hint)
				if err != nil {
					return nil, err
				}
				v = &parsed
			}
			result.GlobalHints[pkg] = v
		}
	}

	return &result, nil
}

// ParseSnapshotString is ParseSnapshot on a string.
func ParseSnapshotString(str string, ui UI) (*UnresolvedSnapshot, error) {
	return ParseSnapshot([]byte(str), ui)
}

// Resolve resolves the snapshot's parent location and all package
// locations against baseDir, the directory of the document.
func (us *UnresolvedSnapshot) Resolve(baseDir string) (*Snapshot, error) {
	parent, err := ResolveSnapshotLocation(us.Parent, baseDir, us.Compiler)
	if err != nil {
		return nil, err
	}
	result := Snapshot{
		Parent:      parent,
		Name:        us.Name,
		Drop:        us.Drop,
		Flags:       us.Flags,
		Hidden:      us.Hidden,
		GhcOptions:  us.GhcOptions,
		GlobalHints: us.GlobalHints,
	}
	for _, ul := range us.Locations {
		locs, err := ResolveLocation(ul, baseDir)
		if err != nil {
			return nil, err
		}
		result.Locations = append(result.Locations, locs...)
	}
	return &result, nil
}
