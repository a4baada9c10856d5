package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ltcombine/adapters/treefile"
)

const outerFile = `{
  "levels": [
    {"type": "SRC", "nodes": [{"prefix": "s1", "weight": 0.6}, {"prefix": "s2", "weight": 0.4}]},
    {"type": "MAG", "nodes": [{"prefix": "m1", "weight": 0.7}, {"prefix": "m2", "weight": 0.3}]}
  ]
}`

const innerFile = `
level "MAG" {
  node "m1" {
    weight = 0.7
  }
  node "m2" {
    weight = 0.3
  }
}

level "GMPE" {
  node "g1" {
    weight = 0.5
  }
  node "g2" {
    weight = 0.5
  }
}

branch {
  values = ["m1", "g1"]
  weight = 0.5
}
branch {
  values = ["m1", "g2"]
  weight = 0.5
}
branch {
  values = ["m2", "g1"]
  weight = 0.5
}
branch {
  values = ["m2", "g2"]
  weight = 0.5
}
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func TestCLI(t *testing.T) {
	dir := t.TempDir()
	outer := filepath.Join(dir, "source.json")
	inner := filepath.Join(dir, "gmpe.hcl")
	require.NoError(t, os.WriteFile(outer, []byte(outerFile), 0644))
	require.NoError(t, os.WriteFile(inner, []byte(innerFile), 0644))

	t.Run("version", func(t *testing.T) {
		assert.Contains(t, execute(t, "version"), "ltcombine version "+version)
	})

	t.Run("inspect", func(t *testing.T) {
		out := execute(t, "inspect", outer, inner)
		assert.Contains(t, out, "Branches: 4")
		assert.Contains(t, out, "[shared]")
	})

	csvPath := filepath.Join(dir, "combined.csv")
	treePath := filepath.Join(dir, "combined.json")
	t.Run("combine", func(t *testing.T) {
		out := execute(t, "combine", outer, inner,
			"--common", "MAG", "--csv", csvPath, "--tree", treePath, "--threads", "2")
		// 4 outer branches, each matching the 2 inner branches with its magnitude
		assert.Contains(t, out, "Combined 8 branches over 3 levels")
		assert.Contains(t, out, "Total weight 1.000000 over 8 branches")

		data, err := os.ReadFile(csvPath)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 9)
		assert.Equal(t, "index,weight,outer_index,inner_index,SRC,MAG,GMPE", lines[0])

		tree, err := treefile.NewRegistry(nil).Load(treePath)
		require.NoError(t, err)
		assert.Equal(t, 8, tree.Size())
		assert.InDelta(t, 1.0, tree.TotalWeight(), 1e-9)
	})

	t.Run("sample", func(t *testing.T) {
		sampled := filepath.Join(dir, "sampled.yaml")
		out := execute(t, "sample", treePath, "-n", "3", "--redraw", "--seed", "5", "--out", sampled)
		assert.Contains(t, out, "Sampled 3 branches")

		tree, err := treefile.NewRegistry(nil).Load(sampled)
		require.NoError(t, err)
		assert.Equal(t, 3, tree.Size())
		assert.InDelta(t, 1.0, tree.TotalWeight(), 1e-9)
	})

	t.Run("config init", func(t *testing.T) {
		path := filepath.Join(dir, "conf", "ltcombine.json")
		execute(t, "config", "init", path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"pairwise_samples": 0`)
	})
}
