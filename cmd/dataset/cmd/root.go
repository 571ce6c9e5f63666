package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	quiet bool
)

var rootCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Floor-plan annotation dataset tools",
	Long: `Offline tools for annotation exports: merge Phase 1 metadata with
Phase 2 elements into training documents and compute grid sizes for a crop.

Examples:
  dataset merge exports/                       # Merge pairs into exports/integrated
  dataset merge exports/ -o out --add-prompts  # Custom output with prompts
  dataset grid --width 158 --height 263        # Grid for a crop in PDF points`,
	Version: "1.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			log.SetOutput(io.Discard)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress logs")
}
