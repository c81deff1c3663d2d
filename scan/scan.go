// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scan enumerates the labeled images of an assets directory.
//
// The directory is expected to hold either one subdirectory per label:
//
//	assets/
//	  cat/001.jpg
//	  dog/001.png
//
// or flat files whose names start with the label, e.g. `cat01.jpg`, `dog_7.png`.
package scan

import (
	"io/fs"
	"iter"
	"path/filepath"
	"unicode"

	"github.com/pkg/errors"
)

// Extensions accepted by the scanner. The comparison is case-sensitive.
var Extensions = []string{".jpg", ".png"}

// ErrEmptyLabel is returned when no label can be derived for an image, e.g. `01.jpg` with labels taken from file names.
var ErrEmptyLabel = errors.New("empty label")

// ImageRecord is one image found by the scanner.
type ImageRecord struct {
	// ImagePath to the image, including the root directory given to Images.
	ImagePath string

	// Label of the image, never empty.
	Label string
}

// IsImage returns whether the file name has one of the accepted Extensions.
func IsImage(name string) bool {
	ext := filepath.Ext(name)
	for _, accepted := range Extensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

// Label derives the label of the image in filePath.
//
// If useFolderNameAsLabel is true, it is the name of the directory holding the file. Otherwise, it is the
// leading run of letters of the file name.
func Label(filePath string, useFolderNameAsLabel bool) string {
	if useFolderNameAsLabel {
		dir := filepath.Dir(filePath)
		name := filepath.Base(dir)
		if name == "." || name == string(filepath.Separator) {
			// No parent directory name.
			return dir
		}
		return name
	}
	name := filepath.Base(filePath)
	for idx, r := range name {
		if !unicode.IsLetter(r) {
			return name[:idx]
		}
	}
	return name
}

// Images returns a sequence over the images under root, recursively, in lexical order.
//
// Each iteration walks the filesystem again, so the sequence can be ranged over multiple times.
// Files with extensions other than Extensions are skipped.
//
// Errors (e.g. root doesn't exist, or an image whose label would be empty) are yielded once and end the sequence.
// A missing root yields an error that wraps fs.ErrNotExist.
func Images(root string, useFolderNameAsLabel bool) iter.Seq2[ImageRecord, error] {
	return func(yield func(ImageRecord, error) bool) {
		stopped := false
		walkErr := filepath.WalkDir(root, func(filePath string, entry fs.DirEntry, err error) error {
			if err != nil {
				return errors.Wrapf(err, "failed to scan images in %q", root)
			}
			if entry.IsDir() || !IsImage(entry.Name()) {
				return nil
			}
			record := ImageRecord{
				ImagePath: filePath,
				Label:     Label(filePath, useFolderNameAsLabel),
			}
			if record.Label == "" {
				return errors.Wrapf(ErrEmptyLabel, "image %q", filePath)
			}
			if !yield(record, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if walkErr != nil && !stopped {
			yield(ImageRecord{}, walkErr)
		}
	}
}

// Collect all records of the sequence, stopping at the first error.
func Collect(seq iter.Seq2[ImageRecord, error]) ([]ImageRecord, error) {
	var records []ImageRecord
	for record, err := range seq {
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
