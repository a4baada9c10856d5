package ui

import (
	"fmt"
	"strconv"

	"ltcombine/core/combiner"
	"ltcombine/core/logictree"
	"ltcombine/core/pipeline"
	"ltcombine/core/processors"
)

// ProgressObserver draws pipeline progress as a bar over combined branches.
// It implements pipeline.Observer.
type ProgressObserver struct {
	w    *Writer
	bar  *ProgressBar
	done bool
}

// NewProgressObserver creates an observer drawing on w
func (w *Writer) NewProgressObserver() *ProgressObserver {
	return &ProgressObserver{w: w}
}

// Progress implements pipeline.Observer
func (o *ProgressObserver) Progress(p pipeline.Progress) {
	if o.done {
		return
	}
	if o.bar == nil {
		o.bar = o.w.NewProgressBar(p.BranchesTotal, "Combining")
	}
	o.bar.Update(p.BranchesDone, p.ETA)
	if p.BranchesDone >= p.BranchesTotal {
		o.bar.Done()
		o.done = true
	}
}

// RenderReport prints the outcome of a pipeline run
func (w *Writer) RenderReport(rep *pipeline.Report, levels int, stats *combiner.SamplingStats) {
	w.Success("Combined %d branches over %d levels (run %s)", rep.Branches, levels, rep.RunID)
	w.Info("Throughput %.1f branches/s in %s", rep.Throughput, formatDuration(rep.Elapsed))
	if stats != nil && stats.Duplicates > 0 {
		w.Warning("Pairwise sampling redrew %d duplicate pairs", stats.Duplicates)
	}

	t := w.NewTable("Stage", "Blocking", "Breakdown")
	t.AddRow("combining", pipeline.FormatBlocking(rep.Combining, rep.Elapsed), "")
	for _, p := range rep.Processors {
		t.AddRow(p.Name, pipeline.FormatBlocking(p.Blocking, rep.Elapsed), p.Breakdown)
	}
	t.Render()
}

// RenderSummary prints the weight carried by each node of the combined levels
func (w *Writer) RenderSummary(sum processors.Summary) {
	w.Header("Weight Summary")
	w.Println("Total weight %s over %d branches", sum.Total.StringFixed(6), sum.Branches)
	for _, ls := range sum.Levels {
		w.SubHeader(ls.Level.String())
		t := w.NewTable("Node", "Branches", "Weight", "Fraction")
		for _, ns := range ls.Nodes {
			t.AddRow(
				ns.Node.ShortName(),
				strconv.Itoa(ns.Branches),
				ns.Weight.StringFixed(6),
				fmt.Sprintf("%.4f", ns.Fraction),
			)
		}
		t.Render()
	}
}

// RenderTree describes a tree's levels and nodes. Levels in shared are
// marked as used by more than one tree.
func (w *Writer) RenderTree(title string, tree *logictree.Tree, shared map[*logictree.Level]bool, branches int) {
	w.Header(title)
	w.Println("Branches: %d  Total weight: %.6f  Weights: %s",
		tree.Size(), tree.TotalWeight(), tree.WeightProvider().Name())
	for _, l := range tree.Levels() {
		label := fmt.Sprintf("%s type=%s nodes=%d", l, l.Type(), len(l.Nodes()))
		if shared[l] {
			label += " " + w.Color(Yellow, "[shared]")
		}
		w.SubHeader(label)
		t := w.NewTable("Prefix", "Name", "Weight")
		for _, n := range l.Nodes() {
			t.AddRow(n.Prefix(), n.Name(), fmt.Sprintf("%.4f", n.Weight()))
		}
		t.Render()
	}
	if branches <= 0 {
		return
	}
	t := w.NewTable("#", "Branch", "Weight")
	for b := 0; b < branches && b < tree.Size(); b++ {
		t.AddRow(strconv.Itoa(b), tree.Branch(b).String(), fmt.Sprintf("%.6f", tree.Weight(b)))
	}
	t.Render()
}
