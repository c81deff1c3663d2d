// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gomlx/imageclassifier/scan"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// AssembleOptions configures Assemble.
type AssembleOptions struct {
	// Name given to the assembled dataset.
	Name string

	// ImageFolder is prepended to relative image paths when reading the images.
	// Usually the same root directory given to the scanner.
	ImageFolder string

	// Rand used to shuffle the rows. If nil, a generator seeded with the current time is used.
	Rand *rand.Rand

	// SkipUnreadable makes Assemble drop (with a warning) images that can't be read or decoded,
	// instead of failing.
	SkipUnreadable bool
}

// Assemble materializes the records into a shuffled Dataset: it encodes the labels into keys (see LabelKeys)
// and reads the raw bytes of every image.
//
// It returns ErrEmptyDataset if there are no records (or none left after skipping unreadable images), and
// an error wrapping ErrImageDecode (or the filesystem error) for the first image that can't be read, unless
// opts.SkipUnreadable is set.
func Assemble(records []scan.ImageRecord, opts AssembleOptions) (*Dataset, error) {
	if opts.Name == "" {
		opts.Name = "images"
	}
	if len(records) == 0 {
		return nil, errors.Wrap(ErrEmptyDataset, "no images found to assemble")
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	}
	shuffled := make([]scan.ImageRecord, len(records))
	copy(shuffled, records)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	rows := make([]Row, 0, len(shuffled))
	for _, record := range shuffled {
		img, err := ReadImage(resolveImagePath(opts.ImageFolder, record.ImagePath))
		if err != nil {
			if opts.SkipUnreadable {
				klog.Warningf("Skipping image: %v", err)
				continue
			}
			return nil, err
		}
		rows = append(rows, Row{ImagePath: record.ImagePath, Label: record.Label, Image: img})
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(ErrEmptyDataset, "all %d images were unreadable", len(records))
	}

	labels := NewLabelKeys()
	for ii := range rows {
		rows[ii].LabelAsKey = labels.add(rows[ii].Label)
	}
	klog.V(1).Infof("Assembled %d images with %d labels", len(rows), labels.Len())
	return newDataset(opts.Name, rows, labels), nil
}

// resolveImagePath joins imageFolder and imagePath, unless imagePath is absolute.
func resolveImagePath(imageFolder, imagePath string) string {
	if imageFolder == "" || filepath.IsAbs(imagePath) {
		return imagePath
	}
	return filepath.Join(imageFolder, imagePath)
}

// ReadImage reads the raw bytes of the image file, and checks that it holds a JPEG or PNG image.
// Only the image header is decoded.
func ReadImage(imagePath string) ([]byte, error) {
	contents, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %q", imagePath)
	}
	if _, _, err = image.DecodeConfig(bytes.NewReader(contents)); err != nil {
		return nil, errors.Wrapf(ErrImageDecode, "image %q: %v", imagePath, err)
	}
	return contents, nil
}
