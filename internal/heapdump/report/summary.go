// Package report renders Aggregator results as the three artifacts a run
// produces: a text summary, a pruned dominator-tree DOT file, and a
// folded-format flame-graph file.
package report

import (
	"fmt"
	"io"

	"github.com/heapdom/retain/internal/heapdump/retention"
)

// Formatter writes the text summary, section by section, in the style of
// titled blocks separated by blank lines.
type Formatter struct {
	Writer io.Writer
}

// NewFormatter creates a Formatter writing to w.
func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{Writer: w}
}

// WriteSummary renders the ranked tables for a whole-graph (or
// subtree-restricted) Aggregator result. topN <= 0 means unlimited.
func (f *Formatter) WriteSummary(res *retention.Result, topN int) error {
	sections := []struct {
		title  string
		totals []retention.TypeTotal
	}{
		{"In-Use By Type", res.InUseByType},
		{"Retained By Type", res.RetainedByType},
		{"Unreachable By Type", res.UnreachableByType},
	}

	for _, sec := range sections {
		if err := f.writeTypeSection(sec.title, retention.TopN(sec.totals, topN)); err != nil {
			return err
		}
	}

	return f.writeRetainerSection("Top Retainers", retention.TopNRetainers(res.Retainers, topN))
}

// WriteSubtreeSummary renders a Subtree's scoped reports plus the
// leaked-out count.
func (f *Formatter) WriteSubtreeSummary(sub *retention.Subtree, topN int) error {
	if _, err := fmt.Fprintf(f.Writer, "=== Subtree Root ===\n  node index: %d\n\n", sub.Root); err != nil {
		return err
	}

	sections := []struct {
		title  string
		totals []retention.TypeTotal
	}{
		{"In-Use By Type (subtree)", sub.InUseByType},
		{"Retained By Type (subtree)", sub.RetainedByType},
		{"Leaked Out By Type", sub.LeakedOutByType},
	}
	for _, sec := range sections {
		if err := f.writeTypeSection(sec.title, retention.TopN(sec.totals, topN)); err != nil {
			return err
		}
	}

	if err := f.writeRetainerSection("Top Retainers (subtree)", retention.TopNRetainers(sub.Retainers, topN)); err != nil {
		return err
	}

	_, err := fmt.Fprintf(f.Writer, "=== Leaked Out ===\n  %d node(s) reachable from the subtree root but not retained by it\n\n", len(sub.LeakedOut))
	return err
}

func (f *Formatter) writeTypeSection(title string, totals []retention.TypeTotal) error {
	if _, err := fmt.Fprintf(f.Writer, "=== %s ===\n", title); err != nil {
		return err
	}
	for _, t := range totals {
		if _, err := fmt.Fprintf(f.Writer, "  %-10s %10s  (%d objects)\n", t.Type, formatBytes(t.Bytes), t.Count); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(f.Writer)
	return err
}

func (f *Formatter) writeRetainerSection(title string, entries []retention.RetainerEntry) error {
	if _, err := fmt.Fprintf(f.Writer, "=== %s ===\n", title); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(f.Writer, "  %-40s %10s  (%d objects)\n", e.Label, formatBytes(e.SubtreeBytes), e.SubtreeCount); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(f.Writer)
	return err
}
