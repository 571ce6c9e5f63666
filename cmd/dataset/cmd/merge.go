package cmd

import (
	"fmt"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/dataset"

	"github.com/spf13/cobra"
)

var (
	outputDir  string
	addPrompts bool
	dryRun     bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <input_dir>",
	Short: "Merge Phase 1 and Phase 2 JSON files for training",
	Long: `Find <base>_metadata.json files with a matching <base>_elements.json
and write <base>_integrated.json plus merge_summary.json to the output directory.

Examples:
  dataset merge exports/
  dataset merge exports/ --output-dir training --add-prompts
  dataset merge exports/ --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "output directory (default <input_dir>/integrated)")
	mergeCmd.Flags().BoolVar(&addPrompts, "add-prompts", false, "add generated prompts to integrated documents")
	mergeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be merged without writing files")
}

func runMerge(cmd *cobra.Command, args []string) error {
	m := &dataset.Merger{
		Input:      args[0],
		Output:     outputDir,
		AddPrompts: addPrompts,
		DryRun:     dryRun,
	}

	summary, err := m.Run()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintf(out, "Dry run: %d pairs would be merged into %s\n", summary.TotalPairs, summary.OutputDirectory)
		return nil
	}
	fmt.Fprintf(out, "Successfully merged %d out of %d pairs\n", summary.SuccessfulMerges, summary.TotalPairs)
	if summary.SuccessfulMerges > 0 {
		fmt.Fprintf(out, "Integrated JSON files saved to: %s\n", summary.OutputDirectory)
	}
	return nil
}
