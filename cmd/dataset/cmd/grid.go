package cmd

import (
	"errors"
	"fmt"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/geometry"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"

	"github.com/spf13/cobra"
)

var (
	cropWidth  float64
	cropHeight float64
	scale      int
	dpi        int
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Compute the 910mm grid for a crop size",
	Long: `Compute grid dimensions for a crop given in PDF points at drawing
scale 1:scale, and the size of one grid module in export pixels.

Examples:
  dataset grid --width 158 --height 263
  dataset grid --width 400 --height 300 --scale 50 --dpi 150`,
	Args: cobra.NoArgs,
	RunE: runGrid,
}

func init() {
	rootCmd.AddCommand(gridCmd)

	gridCmd.Flags().Float64Var(&cropWidth, "width", 0, "crop width in PDF points")
	gridCmd.Flags().Float64Var(&cropHeight, "height", 0, "crop height in PDF points")
	gridCmd.Flags().IntVar(&scale, "scale", 100, "drawing scale denominator")
	gridCmd.Flags().IntVar(&dpi, "dpi", 300, "export dpi")
	gridCmd.MarkFlagRequired("width")
	gridCmd.MarkFlagRequired("height")
}

func runGrid(cmd *cobra.Command, args []string) error {
	if cropWidth <= 0 || cropHeight <= 0 {
		return errors.New("width and height must be positive")
	}
	if scale <= 0 || dpi <= 0 {
		return errors.New("scale and dpi must be positive")
	}

	dims := geometry.GridDimensionsFromCrop(models.CropRegion{Width: cropWidth, Height: cropHeight}, scale)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Grid:      %d x %d modules\n", dims.WidthGrids, dims.HeightGrids)
	fmt.Fprintf(out, "Module:    %.1f px at %d dpi, 1:%d\n", geometry.GridPixelSize(dpi, scale), dpi, scale)
	return nil
}
