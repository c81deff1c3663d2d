// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset assembles scanned images into an in-memory table and partitions it
// into train, validation and test sets.
//
// The table is a gota DataFrame with the columns ColImagePath, ColLabel and ColLabelAsKey.
// The raw image bytes (the ColImage feature) are kept alongside, aligned by row.
package dataset

import (
	"fmt"
	"io"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// Column names.
const (
	ColImagePath  = "ImagePath"
	ColLabel      = "Label"
	ColLabelAsKey = "LabelAsKey"
	ColImage      = "Image"
)

var (
	// ErrEmptyDataset is returned when there are no rows where at least one is required.
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrImageDecode is returned when an image file can't be read or isn't a valid JPEG or PNG image.
	ErrImageDecode = errors.New("invalid image")
)

// Row of a Dataset.
type Row struct {
	ImagePath  string
	Label      string
	LabelAsKey int
	Image      []byte
}

// Dataset is an immutable table of labeled images.
type Dataset struct {
	name   string
	frame  dataframe.DataFrame
	images [][]byte
	labels *LabelKeys

	// Columns cached from frame.
	paths, rowLabels []string
	keys             []int
}

// newDataset builds the Dataset from the rows. All rows' labels must be in labels.
func newDataset(name string, rows []Row, labels *LabelKeys) *Dataset {
	paths := make([]string, len(rows))
	rowLabels := make([]string, len(rows))
	keys := make([]int, len(rows))
	images := make([][]byte, len(rows))
	for ii, row := range rows {
		paths[ii] = row.ImagePath
		rowLabels[ii] = row.Label
		keys[ii] = row.LabelAsKey
		images[ii] = row.Image
	}
	return &Dataset{
		name: name,
		frame: dataframe.New(
			series.New(paths, series.String, ColImagePath),
			series.New(rowLabels, series.String, ColLabel),
			series.New(keys, series.Int, ColLabelAsKey),
		),
		images:    images,
		labels:    labels,
		paths:     paths,
		rowLabels: rowLabels,
		keys:      keys,
	}
}

// fromFrame builds the Dataset from a frame with the standard columns, and its images aligned by row.
func fromFrame(name string, frame dataframe.DataFrame, images [][]byte, labels *LabelKeys) (*Dataset, error) {
	if frame.Err != nil {
		return nil, errors.Wrapf(frame.Err, "invalid frame for dataset %q", name)
	}
	keys, err := frame.Col(ColLabelAsKey).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid column %q for dataset %q", ColLabelAsKey, name)
	}
	return &Dataset{
		name:      name,
		frame:     frame,
		images:    images,
		labels:    labels,
		paths:     frame.Col(ColImagePath).Records(),
		rowLabels: frame.Col(ColLabel).Records(),
		keys:      keys,
	}, nil
}

// Name of the dataset, used in reports.
func (ds *Dataset) Name() string { return ds.name }

// WithName returns a shallow copy of the dataset with a new name.
func (ds *Dataset) WithName(name string) *Dataset {
	dsCopy := *ds
	dsCopy.name = name
	return &dsCopy
}

// Len returns the number of rows.
func (ds *Dataset) Len() int { return len(ds.paths) }

// Labels returns the label encoding shared by this dataset and all its subsets.
func (ds *Dataset) Labels() *LabelKeys { return ds.labels }

// Frame returns the table with the ColImagePath, ColLabel and ColLabelAsKey columns.
func (ds *Dataset) Frame() dataframe.DataFrame { return ds.frame }

// Row returns the row at index idx. It panics if idx is out of range.
func (ds *Dataset) Row(idx int) Row {
	return Row{
		ImagePath:  ds.paths[idx],
		Label:      ds.rowLabels[idx],
		LabelAsKey: ds.keys[idx],
		Image:      ds.images[idx],
	}
}

// Rows returns all rows, in order.
func (ds *Dataset) Rows() []Row {
	rows := make([]Row, ds.Len())
	for ii := range rows {
		rows[ii] = ds.Row(ii)
	}
	return rows
}

// Subset returns a new dataset with the rows at the given indices, in the given order.
func (ds *Dataset) Subset(name string, indices []int) (*Dataset, error) {
	for _, idx := range indices {
		if idx < 0 || idx >= ds.Len() {
			return nil, errors.Errorf("index %d out of range for dataset %q with %d rows", idx, ds.name, ds.Len())
		}
	}
	if len(indices) == 0 {
		return newDataset(name, nil, ds.labels), nil
	}
	images := make([][]byte, len(indices))
	for ii, idx := range indices {
		images[ii] = ds.images[idx]
	}
	return fromFrame(name, ds.frame.Subset(indices), images, ds.labels)
}

// Keys returns the LabelAsKey column.
func (ds *Dataset) Keys() []int { return slices.Clone(ds.keys) }

// NumBytes returns the total size of the images in the dataset.
func (ds *Dataset) NumBytes() int64 {
	var total int64
	for _, img := range ds.images {
		total += int64(len(img))
	}
	return total
}

// Describe writes the number of examples per label and the total size of the images.
func (ds *Dataset) Describe(w io.Writer) {
	counts := make([]int, ds.labels.Len())
	for _, key := range ds.keys {
		counts[key]++
	}
	fmt.Fprintf(w, "Dataset %q: %s images, %s\n", ds.name,
		humanize.Comma(int64(ds.Len())), humanize.Bytes(uint64(ds.NumBytes())))
	for key, label := range ds.labels.Labels() {
		fmt.Fprintf(w, "\t%s (key=%d): %s\n", label, key, humanize.Comma(int64(counts[key])))
	}
}
