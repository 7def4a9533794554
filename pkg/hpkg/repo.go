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
	"os/exec"

	"github.com/haskellpkg/hpkg/pkg/git"
)

// checkoutRepo materializes the repo's pinned commit in dir. Git goes
// through the embedded git implementation; mercurial shells out to the
// hg binary.
func checkoutRepo(ctx context.Context, repo Repo, dir string) error {
	switch repo.Kind {
	case VCSGit:
		_, err := git.Clone(ctx, dir, git.CloneOptions{
			URL:  repo.URL,
			Hash: repo.Commit,
		})
		return err
	case VCSMercurial:
		if err := runCommand(ctx, "", "hg", "clone", repo.URL, dir); err != nil {
			return err
		}
		return runCommand(ctx, dir, "hg", "update", "--clean", repo.Commit)
	}
	return &ContextError{Reason: "unsupported version control kind", Input: string(repo.Kind)}
}

// runCommand runs an external command, mapping failures to a
// CommandError that carries the command line and exit code.
func runCommand(ctx context.Context, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	err := cmd.Run()
	if err == nil {
		return nil
	}
	cmdErr := &CommandError{
		Command:  append([]string{name}, args...),
		Dir:      dir,
		ExitCode: -1,
		Err:      err,
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	return cmdErr
}
