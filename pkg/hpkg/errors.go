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

	"github.com/alessio/shellescape"
)

// ParseError reports malformed textual input: a package identifier, a
// blob key, a snapshot shorthand, or a broken index archive. It always
// carries the offending input. Parse errors are deterministic: the
// same input fails the same way every time.
type ParseError struct {
	// What names the grammar that was violated, e.g. "package identifier".
	What  string
	Input string
	// Err holds the underlying diagnostic, if any.
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s '%s': %v", e.What, e.Input, e.Err)
	}
	return fmt.Sprintf("invalid %s: '%s'", e.What, e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MismatchError reports an integrity violation: a fetched blob, a tree
// key, or a package-metadata field whose actual value disagrees with
// the expected one. It carries both values and is never auto-corrected.
type MismatchError struct {
	// Context identifies the location or blob the check belongs to.
	Context string
	// Field names the value that mismatched, e.g. "tree key".
	Field    string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("mismatched %s for %s: expected %s, got %s", e.Field, e.Context, e.Expected, e.Actual)
}

// ContextError reports a configuration misuse during resolution, like
// a relative path given without a base directory, or an ambiguous
// compiler override. Retrying cannot help; the input must change.
type ContextError struct {
	Reason string
	Input  string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("cannot resolve '%s': %s", e.Input, e.Reason)
}

// CommandError reports a failed subprocess invocation. It is fatal for
// the current sync attempt and is surfaced rather than retried.
type CommandError struct {
	Command []string
	Dir     string
	// ExitCode is -1 when the process never ran or was killed.
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	cmd := shellescape.QuoteCommand(e.Command)
	if e.ExitCode < 0 && e.Err != nil {
		return fmt.Sprintf("command '%s' in '%s' failed: %v", cmd, e.Dir, e.Err)
	}
	return fmt.Sprintf("command '%s' in '%s' failed with exit code %d", cmd, e.Dir, e.ExitCode)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed network fetch. Like CommandError it
// is fatal for the current attempt; retry policy belongs to the caller.
type TransportError struct {
	URL string
	// Status is the HTTP status line, if a response was received.
	Status string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("fetching '%s' failed: %s", e.URL, e.Status)
	}
	return fmt.Sprintf("fetching '%s' failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PackageNotFoundError reports that a package has no entry in the
// index at all. It is distinct from a package that exists with zero
// usable versions.
type PackageNotFoundError struct {
	Name PackageName
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package '%s' not found in index", e.Name)
}
