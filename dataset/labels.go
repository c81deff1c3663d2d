// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"slices"

	"github.com/pkg/errors"
)

// ErrUnknownKey is returned when decoding a key that was never assigned to a label.
var ErrUnknownKey = errors.New("unknown label key")

// LabelKeys maps label strings to a dense integer key space (0, 1, ..., Len()-1) and back.
//
// Keys are assigned in order of first occurrence. The mapping is only meaningful within one run: the same
// label may get a different key if the data is shuffled differently.
type LabelKeys struct {
	labels []string
	keys   map[string]int
}

// NewLabelKeys creates the mapping for the labels given, in order of first occurrence.
// Repeated labels are fine.
func NewLabelKeys(labels ...string) *LabelKeys {
	lk := &LabelKeys{keys: make(map[string]int)}
	for _, label := range labels {
		lk.add(label)
	}
	return lk
}

func (lk *LabelKeys) add(label string) int {
	if key, found := lk.keys[label]; found {
		return key
	}
	key := len(lk.labels)
	lk.keys[label] = key
	lk.labels = append(lk.labels, label)
	return key
}

// Len returns the number of distinct labels.
func (lk *LabelKeys) Len() int { return len(lk.labels) }

// Labels returns the labels ordered by key.
func (lk *LabelKeys) Labels() []string { return slices.Clone(lk.labels) }

// Encode returns the key of the label, and false if the label is unknown.
func (lk *LabelKeys) Encode(label string) (key int, found bool) {
	key, found = lk.keys[label]
	return
}

// Decode returns the label with the given key.
func (lk *LabelKeys) Decode(key int) (string, error) {
	if key < 0 || key >= len(lk.labels) {
		return "", errors.Wrapf(ErrUnknownKey, "key %d not in [0, %d)", key, len(lk.labels))
	}
	return lk.labels[key], nil
}
