// Package cmd - inspect command
package cmd

import (
	"github.com/spf13/cobra"

	"ltcombine/adapters/treefile"
	"ltcombine/core/logictree"
	"ltcombine/core/ui"
)

var inspectBranches int

// inspectCmd describes tree files
var inspectCmd = &cobra.Command{
	Use:   "inspect <tree-file>...",
	Short: "Describe the levels and branches of tree files",
	Long: `Load tree files through one registry and print their levels, nodes and
branch counts. Levels shared between files are marked as such.

Examples:
  ltcombine inspect source.json
  ltcombine inspect source.json gmpe.hcl --branches 10`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&inspectBranches, "branches", 0, "also print the first N branches of each tree")
}

func runInspect(cmd *cobra.Command, args []string) error {
	reg := treefile.NewRegistry(nil)
	trees := make([]*logictree.Tree, len(args))
	uses := make(map[*logictree.Level]int)
	for i, path := range args {
		tree, err := reg.Load(path)
		if err != nil {
			return err
		}
		trees[i] = tree
		for _, l := range tree.Levels() {
			uses[l]++
		}
	}

	shared := make(map[*logictree.Level]bool)
	for l, n := range uses {
		shared[l] = n > 1
	}
	w := ui.NewWriter(cmd.OutOrStdout(), noColor)
	for i, tree := range trees {
		w.RenderTree(args[i], tree, shared, inspectBranches)
	}
	return nil
}
