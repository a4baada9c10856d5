package processors

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"ltcombine/core/combiner"
	"ltcombine/core/pipeline"
	"ltcombine/internal/errors"
)

// CSVWriter writes one row per combined branch: index, weight, outer and
// inner index, then the node prefix for every combined level. Rows are
// written on the IO executor, in index order.
type CSVWriter struct {
	path string
	out  io.Writer

	file    *os.File
	csv     *csv.Writer
	io      pipeline.Executor
	pending *pipeline.Future
	waited  atomic.Int64
	rows    int
}

// NewCSVWriter writes to the file at path, created or truncated on Init
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// NewCSVWriterTo writes to w
func NewCSVWriterTo(w io.Writer) *CSVWriter {
	return &CSVWriter{out: w}
}

// Name implements pipeline.Processor
func (w *CSVWriter) Name() string { return "csv" }

// Init implements pipeline.Processor
func (w *CSVWriter) Init(ctx *combiner.Context, _, ioExec pipeline.Executor) error {
	out := w.out
	if out == nil {
		f, err := os.Create(w.path)
		if err != nil {
			return errors.Wrapf(errors.TypeInput, err, "creating %s", w.path)
		}
		w.file = f
		out = f
	}
	w.csv = csv.NewWriter(out)
	w.io = ioExec

	header := []string{"index", "weight", "outer_index", "inner_index"}
	for _, l := range ctx.Levels {
		header = append(header, l.ShortName())
	}
	return w.csv.Write(header)
}

// ProcessBranch implements pipeline.Processor
func (w *CSVWriter) ProcessBranch(ctx context.Context, c combiner.Combination) error {
	if err := w.wait(); err != nil {
		return err
	}
	row := make([]string, 0, 4+c.Branch.Size())
	row = append(row,
		strconv.Itoa(c.Index),
		strconv.FormatFloat(c.Weight, 'g', -1, 64),
		strconv.Itoa(c.OuterIndex),
		strconv.Itoa(c.InnerIndex),
	)
	row = append(row, c.Branch.Prefixes()...)
	w.pending = w.io.Submit(ctx, func(context.Context) error {
		return w.csv.Write(row)
	})
	w.rows++
	return nil
}

func (w *CSVWriter) wait() error {
	if w.pending == nil {
		return nil
	}
	start := time.Now()
	err := w.pending.Wait()
	w.waited.Add(int64(time.Since(start)))
	w.pending = nil
	return err
}

// Close implements pipeline.Processor
func (w *CSVWriter) Close() error {
	if err := w.wait(); err != nil {
		return err
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// Rows returns the number of rows submitted, excluding the header
func (w *CSVWriter) Rows() int { return w.rows }

// TimeBreakdown implements pipeline.TimeBreakdowner
func (w *CSVWriter) TimeBreakdown(elapsed time.Duration) string {
	return fmt.Sprintf("io wait %s", pipeline.FormatBlocking(time.Duration(w.waited.Load()), elapsed))
}
