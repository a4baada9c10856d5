// Package cmd provides the CLI commands for ltcombine.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ltcombine/internal/config"
	"ltcombine/internal/logging"
)

const version = "0.1.0"

var (
	cfgFile string
	verbose bool
	noColor bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ltcombine",
	Short: "Combine weighted logic trees",
	Long: `ltcombine merges two weighted logic trees into one combined tree.

The combination is a cross product of the outer and inner tree branches,
optionally restricted to matching values on common levels, reduced by
averaging out levels, pairwise sampled or down-sampled. Every combined
branch is streamed through the configured processors.

Examples:
  ltcombine inspect source.json gmpe.hcl
  ltcombine combine source.json gmpe.hcl --csv combined.csv
  ltcombine combine source.json gmpe.hcl --common MAG --pairwise 10 --seed 42
  ltcombine sample combined.json -n 1000 --out sampled.yaml`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(combineCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func initConfig() {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Set(cfg)
	}

	// Initialize logging
	cfg := config.Get()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
	}
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ltcombine version %s\n", version)
	},
}
