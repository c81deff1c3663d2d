// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/imageclassifier/classifier"
)

// PoorAccuracy below which labels are highlighted in the summary.
const PoorAccuracy = 0.5

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// tableWithReds is a lipgloss table where some rows are highlighted in red.
type tableWithReds struct {
	table *lgtable.Table
	count int
	reds  map[int]bool
}

func newTableWithReds(alignments ...lipgloss.Position) *tableWithReds {
	t := &tableWithReds{reds: make(map[int]bool)}
	t.table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				s = headerRowStyle
			case t.reds[row]:
				s = redRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			}
			return s.Align(alignment)
		})
	return t
}

func (t *tableWithReds) row(isRed bool, values ...string) {
	if isRed {
		t.reds[t.count] = true
	}
	t.table.Row(values...)
	t.count++
}

// labelCounts of predictions of one actual label.
type labelCounts struct {
	total, correct int
}

func (c labelCounts) accuracy() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.correct) / float64(c.total)
}

// Summary prints a table with the accuracy per actual label, and returns the overall accuracy.
// Labels with accuracy below PoorAccuracy are highlighted.
func Summary(w io.Writer, predictions []classifier.Prediction) float64 {
	if len(predictions) == 0 {
		fmt.Fprintln(w, "No predictions to summarize.")
		return 0
	}
	perLabel := make(map[string]*labelCounts)
	var overall labelCounts
	for _, p := range predictions {
		counts, found := perLabel[p.Label]
		if !found {
			counts = &labelCounts{}
			perLabel[p.Label] = counts
		}
		counts.total++
		overall.total++
		if p.Correct() {
			counts.correct++
			overall.correct++
		}
	}
	labels := make([]string, 0, len(perLabel))
	for label := range perLabel {
		labels = append(labels, label)
	}
	slices.Sort(labels)

	table := newTableWithReds(lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right)
	table.table.Headers("Label", "Images", "Correct", "Accuracy")
	for _, label := range labels {
		counts := perLabel[label]
		table.row(counts.accuracy() < PoorAccuracy, label, humanize.Comma(int64(counts.total)),
			humanize.Comma(int64(counts.correct)), formatAccuracy(counts.accuracy()))
	}
	table.row(false, "(all)", humanize.Comma(int64(overall.total)),
		humanize.Comma(int64(overall.correct)), formatAccuracy(overall.accuracy()))
	fmt.Fprintln(w, table.table.Render())
	return overall.accuracy()
}

func formatAccuracy(accuracy float64) string {
	return fmt.Sprintf("%.2f%%", 100*accuracy)
}
