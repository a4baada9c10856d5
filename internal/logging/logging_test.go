package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		out = append(out, rec)
	}
	return out
}

func TestBuildTagsService(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  []string
	}{
		{name: "info", level: "info", want: []string{"info", "warn"}},
		{name: "debug", level: "debug", want: []string{"debug", "info", "warn"}},
		{name: "unknown level falls back to info", level: "loud", want: []string{"info", "warn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := Build(Config{Level: tt.level, Format: "json"}, zapcore.AddSync(&buf))
			l.Debug("debug")
			l.Info("info")
			l.Warn("warn")

			recs := records(t, &buf)
			var got []string
			for _, rec := range recs {
				got = append(got, rec["msg"].(string))
				assert.Equal(t, Service, rec["service"])
				assert.Contains(t, rec, "timestamp")
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunAndComponentFields(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	t.Cleanup(func() { Logger = prev })
	Logger = Build(Config{Level: "info", Format: "json"}, zapcore.AddSync(&buf))

	Run(Component("pipeline"), "run-1").Info("starting")
	OrComponent(nil, "combiner").Info("building")
	OrComponent(zap.NewNop(), "ignored").Info("dropped")

	recs := records(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "pipeline", recs[0]["component"])
	assert.Equal(t, "run-1", recs[0]["run_id"])
	assert.Equal(t, "combiner", recs[1]["component"])
	assert.NotContains(t, recs[1], "run_id")
}

func TestComponentBeforeInitialize(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })
	Logger = nil

	assert.NotPanics(t, func() { Component("cli").Info("nothing") })
	assert.NotPanics(t, Sync)
}

func TestInitializeFileOutput(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	path := filepath.Join(t.TempDir(), "missing", "ltcombine.log")
	require.Error(t, Initialize(Config{Output: path}))
	assert.Same(t, prev, Logger)

	path = filepath.Join(t.TempDir(), "ltcombine.log")
	require.NoError(t, Initialize(Config{Level: "warn", Format: "json", Output: path}))
	assert.NotSame(t, prev, Logger)
	Logger.Warn("written")
	Sync()
}
