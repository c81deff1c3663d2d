// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil resolves and prepares the assets and workspace directories.
package fsutil

import (
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists reports whether path exists. Errors other than "not found" are returned.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errors.Wrapf(err, "checking whether %q exists", path)
	}
}

// ReplaceTildeInDir expands a leading "~" or "~/" to the current user's home directory.
// Other paths, including "~name/...", are returned unchanged.
func ReplaceTildeInDir(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	usr, err := user.Current()
	if err != nil {
		return "", errors.Wrapf(err, "resolving home directory for %q", dir)
	}
	return filepath.Join(usr.HomeDir, strings.TrimPrefix(dir, "~")), nil
}

// ResolveDir expands "~" and makes dir absolute. It doesn't check that it exists.
func ResolveDir(dir string) (string, error) {
	dir, err := ReplaceTildeInDir(dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve absolute path of %q", dir)
	}
	return abs, nil
}

// EnsureDir resolves dir (see ResolveDir) and creates it, including parents, if it doesn't exist yet.
func EnsureDir(dir string) (string, error) {
	dir, err := ResolveDir(dir)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory %q", dir)
	}
	return dir, nil
}
