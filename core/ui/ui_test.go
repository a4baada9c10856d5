package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltcombine/core/combiner"
	"ltcombine/core/pipeline"
	"ltcombine/core/processors"
	"ltcombine/internal/testutils"
)

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	tbl := w.NewTable("Node", "Weight")
	tbl.AddRow("A1", "0.6")
	tbl.AddRow("A-long", "0.4", "ignored")
	tbl.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Node   │ Weight", lines[0])
	assert.Equal(t, "A1     │ 0.6   ", lines[2])
	assert.Equal(t, "A-long │ 0.4   ", lines[3])
}

func TestColor(t *testing.T) {
	assert.Equal(t, "x", NewWriter(nil, true).Color(Red, "x"))
	assert.Equal(t, Red+"x"+Reset, NewWriter(nil, false).Color(Red, "x"))
}

func TestVerbosity(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	w.Debug("hidden")
	w.Info("shown")
	w.SetVerbosity(0)
	w.Info("hidden")
	w.SetVerbosity(2)
	w.Debug("detail")
	assert.Equal(t, "ℹ shown\n  detail\n", buf.String())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "< 1s"},
		{42 * time.Second, "42s"},
		{125 * time.Second, "2m 5s"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestProgressAndReport(t *testing.T) {
	outer := testutils.SingleLevelTree(t, "A", []string{"A1", "A2"}, []float64{0.6, 0.4})
	inner := testutils.SingleLevelTree(t, "B", []string{"B1", "B2", "B3"}, []float64{0.5, 0.3, 0.2})
	c, err := combiner.New(outer, inner)
	require.NoError(t, err)

	var progress, out bytes.Buffer
	summary := processors.NewWeightSummary(nil)
	rep, err := pipeline.New(c,
		pipeline.WithComputeThreads(1),
		pipeline.WithObserver(NewWriter(&progress, true).NewProgressObserver()),
	).Add(summary).Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, progress.String(), "(3/6)")
	assert.Contains(t, progress.String(), "100% (6/6)")
	assert.True(t, strings.HasSuffix(progress.String(), "\n"))
	assert.Equal(t, 1, strings.Count(progress.String(), "\n"), "the bar is finished once")

	w := NewWriter(&out, true)
	w.RenderReport(rep, len(c.Levels()), c.SamplingStats())
	w.RenderSummary(summary.Report())
	assert.Contains(t, out.String(), "✓ Combined 6 branches over 2 levels")
	assert.Contains(t, out.String(), "weight-summary")
	assert.Contains(t, out.String(), "Total weight 1.000000 over 6 branches")
	assert.Contains(t, out.String(), "B3   │ 2        │ 0.200000 │ 0.2000")
}

func TestRenderTree(t *testing.T) {
	outer := testutils.SingleLevelTree(t, "A", []string{"A1", "A2"}, []float64{0.6, 0.4})
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	w.RenderTree("outer.json", outer, nil, 1)

	s := buf.String()
	assert.Contains(t, s, "━━━ outer.json ━━━")
	assert.Contains(t, s, "Branches: 2  Total weight: 1.000000  Weights: original")
	assert.NotContains(t, s, "[shared]")
	assert.Contains(t, s, "0 │ [A1]")
}
