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

package commands

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/haskellpkg/hpkg/pkg/hpkg"
	"github.com/haskellpkg/hpkg/pkg/set"
	"github.com/haskellpkg/hpkg/pkg/tracking"
)

const ConfigKeyIndexGitURL = "index.git-url"
const ConfigKeyIndexArchiveURL = "index.archive-url"
const ConfigKeyAutosync = "autosync"

type ConfigStore interface {
	Load(ctx context.Context) (*Config, error)
	Store(ctx context.Context, cfg *Config) error
}

type Config struct {
	StorePath string
	IndexPath string

	// The following entries must be empty/nil if they are not set in
	// the configuration.
	IndexGitURL     string
	IndexArchiveURL string
	Autosync        *bool
}

type CobraCommand func(cmd *cobra.Command, args []string)
type CobraErrorCommand func(cmd *cobra.Command, args []string) error
type Run func(CobraErrorCommand) CobraCommand

type pkgHandler struct {
	cfg      *Config
	cfgStore ConfigStore
	ui       hpkg.UI
	track    tracking.Track
}

func (h *pkgHandler) buildCache() hpkg.Cache {
	options := []hpkg.CacheOption{}
	if h.cfg.StorePath != "" {
		options = append(options, hpkg.WithStorePath(h.cfg.StorePath))
	}
	if h.cfg.IndexPath != "" {
		options = append(options, hpkg.WithIndexPath(h.cfg.IndexPath))
	}
	return hpkg.NewCache("", h.ui, options...)
}

func (h *pkgHandler) autosync(cmd *cobra.Command) (bool, error) {
	shouldAutoSync, err := cmd.Flags().GetBool("auto-sync")
	if err != nil {
		return false, err
	}
	if h.cfg.Autosync != nil {
		shouldAutoSync = shouldAutoSync && *h.cfg.Autosync
	}
	return shouldAutoSync, nil
}

func (h *pkgHandler) buildManager(ctx context.Context, cmd *cobra.Command) (*hpkg.Manager, error) {
	cache := h.buildCache()
	if err := cache.CreateStoreDir(); err != nil {
		return nil, err
	}
	shouldAutoSync, err := h.autosync(cmd)
	if err != nil {
		return nil, err
	}

	indexOptions := []hpkg.IndexOption{}
	if h.cfg.IndexGitURL != "" {
		indexOptions = append(indexOptions, hpkg.WithIndexGitURL(h.cfg.IndexGitURL))
	}
	if h.cfg.IndexArchiveURL != "" {
		indexOptions = append(indexOptions, hpkg.WithIndexArchiveURL(h.cfg.IndexArchiveURL))
	}
	index, err := hpkg.LoadPackageIndex(ctx, cache, h.ui, indexOptions...)
	if err != nil {
		return nil, err
	}

	store := hpkg.NewFSStore(cache.StorePath(), h.ui)
	return hpkg.NewManager(cache, store, index, nil, shouldAutoSync, h.ui, h.track), nil
}

// Hpkg builds the command tree.
func Hpkg(run Run, track tracking.Track, configStore ConfigStore, ui hpkg.UI) (*cobra.Command, error) {

	if ui == nil {
		ui = hpkgUI
	}

	handler := &pkgHandler{
		cfgStore: configStore,
		ui:       ui,
		track:    track,
	}

	// 1. Loads the config before invoking the command.
	// 2. Intercepts any error and checks if it is an already-reported error.
	//    If it is, replaces it with a silent error.
	//    Otherwise returns it to the caller.
	// 3. Wraps the call into the given 'run' function.
	errorCfgRun := func(f CobraErrorCommand) CobraCommand {
		return run(func(cmd *cobra.Command, args []string) error {
			if handler.cfg == nil {
				cfg, err := handler.cfgStore.Load(cmd.Context())
				if err != nil {
					return err
				}
				handler.cfg = cfg
			}

			err := f(cmd, args)

			if hpkg.IsErrAlreadyReported(err) {
				return newExitError(1)
			}
			return err
		})
	}

	cmd := &cobra.Command{
		Use:   "hpkg",
		Short: "Manage package sources and snapshots",
	}
	cmd.PersistentFlags().Bool("auto-sync", true, "automatically synchronize the package index")

	cmd.AddCommand(&cobra.Command{
		Use:   "update",
		Short: "Downloads the latest package index",
		Long: `Downloads the latest package index.

The index is the metadata of every published package: for each package
all released versions and their cabal files. Other commands use it to
answer version queries without hitting the network.`,
		Run:  errorCfgRun(handler.indexUpdate),
		Args: cobra.NoArgs,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "versions <package>",
		Short: "Lists all released versions of a package",
		Long: `Lists all released versions of the given package, in ascending
order. An unknown package is an error.`,
		Example: `  # List all versions of the 'lens' package.
  hpkg versions lens
`,
		Run:  errorCfgRun(handler.pkgVersions),
		Args: cobra.ExactArgs(1),
	})

	resolveCmd := &cobra.Command{
		Use:   "resolve <snapshot>",
		Short: "Resolves a snapshot to its effective package set",
		Long: `Resolves a snapshot reference and prints the flattened result.

The reference can be a shorthand like 'lts-20.5', 'nightly-2023-01-15'
or 'ghc-9.2.5', a 'github:<user>/<repo>:<path>' pointer, a URL, or a
local file path. The whole parent chain is loaded and merged, so the
output lists one effective location per package.`,
		Example: `  # Resolve a curated snapshot.
  hpkg resolve lts-20.5

  # Resolve a local snapshot document.
  hpkg resolve ./snapshot.yaml
`,
		Run:  errorCfgRun(handler.snapshotResolve),
		Args: cobra.ExactArgs(1),
	}
	cmd.AddCommand(resolveCmd)

	treeCmd := &cobra.Command{
		Use:   "tree <location>",
		Short: "Fetches a package and prints its content-addressed tree",
		Long: `Fetches the package at the given location and prints every file
of its source tree together with the file's blob key. The location can
be a package identifier like 'lens-5.2', an archive URL or path, or a
local directory.

The printed tree key is the content address of the whole source tree:
two locations with the same tree key contain bit-identical sources.`,
		Run:  errorCfgRun(handler.pkgTree),
		Args: cobra.ExactArgs(1),
	}
	cmd.AddCommand(treeCmd)

	return cmd, nil
}

type exitError struct {
	code int
}

func (e *exitError) ExitCode() int {
	return e.code
}

func (e *exitError) Silent() bool {
	return true
}

func (e *exitError) Error() string {
	return fmt.Sprintf("ExitError - exit code: %d", e.code)
}

func newExitError(code int) *exitError {
	return &exitError{
		code: code,
	}
}

var hpkgUI = hpkg.FmtUI

func (h *pkgHandler) indexUpdate(cmd *cobra.Command, args []string) error {
	m, err := h.buildManager(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	if err := m.UpdateIndex(cmd.Context()); err != nil {
		return err
	}
	h.ui.ReportInfo("Package index updated")
	return nil
}

func (h *pkgHandler) pkgVersions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	name, err := hpkg.ParsePackageName(args[0])
	if err != nil {
		return h.ui.ReportError("Invalid package name '%s'", args[0])
	}

	m, err := h.buildManager(ctx, cmd)
	if err != nil {
		return err
	}
	versions, err := m.Versions(ctx, name)
	if err != nil {
		return h.ui.ReportError("%s", ErrorMessage(err))
	}

	h.track(ctx, &tracking.Event{
		Name: "hpkg versions",
		Properties: map[string]string{
			"package": string(name),
		},
	})

	for _, v := range versions {
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}

func (h *pkgHandler) snapshotResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := h.buildManager(ctx, cmd)
	if err != nil {
		return err
	}
	baseDir, err := os.Getwd()
	if err != nil {
		return err
	}
	resolved, err := m.ResolveSnapshot(ctx, args[0], baseDir)
	if err != nil {
		if hpkg.IsErrAlreadyReported(err) {
			return err
		}
		return h.ui.ReportError("%s", ErrorMessage(err))
	}

	out := cmd.OutOrStdout()
	if resolved.Name != "" {
		fmt.Fprintf(out, "name: %s\n", resolved.Name)
	}
	fmt.Fprintf(out, "compiler: %s\n", resolved.Compiler)
	fmt.Fprintf(out, "packages: %d\n", len(resolved.Locations))
	for _, loc := range resolved.Locations {
		fmt.Fprintf(out, "  %s\n", loc)
	}
	if len(resolved.Flags) > 0 {
		names := set.NewString()
		for name := range resolved.Flags {
			names.Add(string(name))
		}
		fmt.Fprintln(out, "flags:")
		for _, name := range names.Sorted() {
			fmt.Fprintf(out, "  %s: %v\n", name, resolved.Flags[hpkg.PackageName(name)])
		}
	}
	return nil
}

// parseLocationArg interprets a command-line location argument: a
// package identifier, an existing local directory, or an archive
// URL/path.
func parseLocationArg(arg string) hpkg.PackageLocation {
	if pir, err := hpkg.ParsePackageIdentifierRevision(arg); err == nil {
		return hpkg.HackageLocation{Ident: pir}
	}
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return hpkg.MutableLocation{Dir: arg}
	}
	return hpkg.ArchiveLocation{Archive: hpkg.Archive{Location: arg}}
}

func (h *pkgHandler) pkgTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := h.buildManager(ctx, cmd)
	if err != nil {
		return err
	}
	loc := parseLocationArg(args[0])
	fetched, err := m.FetchLocation(ctx, loc)
	if err != nil {
		if hpkg.IsErrAlreadyReported(err) {
			return err
		}
		return h.ui.ReportError("%s", ErrorMessage(err))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s-%s\n", fetched.Name, fetched.Version)
	fmt.Fprintf(out, "tree: %s\n", fetched.TreeKey)
	fmt.Fprintf(out, "cabal: %s\n", fetched.CabalKey)
	paths := make([]string, 0, len(fetched.Tree))
	for p := range fetched.Tree {
		paths = append(paths, string(p))
	}
	sort.Strings(paths)
	for _, p := range paths {
		entry := fetched.Tree[hpkg.SafeFilePath(p)]
		marker := ""
		if entry.Type == hpkg.FileTypeExecutable {
			marker = " *"
		}
		fmt.Fprintf(out, "  %s %s%s\n", entry.Key, p, marker)
	}
	return nil
}
