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

package git

import (
	"context"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gogitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

type CloneOptions struct {
	URL string
	// Order of preference: hash > branch > tag.
	Hash         string
	Branch       string
	Tag          string
	SingleBranch bool
	Depth        int
}

// Clone clones the repository with the given [options] into [dir].
// Returns the checked out hash.
func Clone(ctx context.Context, dir string, options CloneOptions) (string, error) {
	url := options.URL
	if !strings.Contains(url, "://") {
		url = "https://" + url
	}
	gogitOptions := &gogit.CloneOptions{
		URL:          url,
		SingleBranch: options.SingleBranch,
		Depth:        options.Depth,
	}

	// It's not easy to clone a specific hash directly.
	// Recent git versions support it (although awkwardly), but go-git doesn't seem to have
	// implemented it yet:
	// ```
	// git init
	// git remote add origin <url>
	// git fetch --depth 1 origin <sha1>
	// git checkout FETCH_HEAD
	// ```
	// If branch or tag is given, we try to checkout that version first. It's likely we
	// will get the right version anyway.
	if options.Branch != "" {
		gogitOptions.ReferenceName = plumbing.NewBranchReferenceName(options.Branch)
	} else if options.Tag != "" {
		gogitOptions.ReferenceName = plumbing.NewTagReferenceName(options.Tag)
	}

	repository, err := gogit.PlainCloneContext(ctx, dir, false, gogitOptions)
	if err != nil && (gogit.NoMatchingRefSpecError{}).Is(err) && options.Hash != "" {
		// The branch/tag doesn't exist, but we have a hash we can try to find directly.
		gogitOptions.Depth = 0
		gogitOptions.ReferenceName = ""
		gogitOptions.NoCheckout = true
		gogitOptions.SingleBranch = false
		repository, err = gogit.PlainCloneContext(ctx, dir, false, gogitOptions)
	}
	if err != nil {
		return "", err
	}

	head, err := repository.Head()
	if err != nil {
		return "", err
	}
	downloadedHash := head.Hash().String()
	if options.Hash != "" && downloadedHash != options.Hash {
		w, err := repository.Worktree()
		if err != nil {
			return "", err
		}
		err = w.Checkout(&gogit.CheckoutOptions{
			Hash: plumbing.NewHash(options.Hash),
		})
		if err != nil {
			return "", err
		}
		return options.Hash, nil
	}
	return downloadedHash, nil
}

type PullOptions struct {
}

func Pull(path string, options PullOptions) error {
	repository, err := gogit.PlainOpen(path)
	if err != nil {
		return err
	}
	wt, err := repository.Worktree()
	if err != nil {
		return err
	}

	pullOptions := &gogit.PullOptions{
		Force: true,
	}

	err = wt.Pull(pullOptions)
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return err
	}
	return nil
}

// FetchTags fetches all tags from origin. Single-branch clones don't
// receive tags on pull, so mirrors that mark releases with tags need
// this after updating.
func FetchTags(path string) error {
	repository, err := gogit.PlainOpen(path)
	if err != nil {
		return err
	}
	err = repository.Fetch(&gogit.FetchOptions{
		RefSpecs: []gogitconfig.RefSpec{"+refs/tags/*:refs/tags/*"},
		Tags:     gogit.AllTags,
		Force:    true,
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return err
	}
	return nil
}
