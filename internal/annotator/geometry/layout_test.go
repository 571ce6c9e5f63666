package geometry

import (
	"testing"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
)

func TestGridDimensionsFromCrop(t *testing.T) {
	cases := []struct {
		crop  models.CropRegion
		scale int
		want  models.GridDimensions
	}{
		{models.CropRegion{Width: 158, Height: 263}, 100, models.GridDimensions{WidthGrids: 6, HeightGrids: 10}},
		{models.CropRegion{X: 40, Y: 40, Width: 158, Height: 263}, 50, models.GridDimensions{WidthGrids: 3, HeightGrids: 5}},
		{models.CropRegion{Width: 1, Height: 2}, 100, models.GridDimensions{WidthGrids: 1, HeightGrids: 1}},
		{models.CropRegion{Width: 595, Height: 842}, 200, models.GridDimensions{WidthGrids: 46, HeightGrids: 65}},
	}

	for _, tc := range cases {
		if got := GridDimensionsFromCrop(tc.crop, tc.scale); got != tc.want {
			t.Errorf("GridDimensionsFromCrop(%+v, %d) = %+v, want %+v", tc.crop, tc.scale, got, tc.want)
		}
	}
}

func TestGridPixelSize(t *testing.T) {
	cases := []struct {
		dpi, scale int
		want       float64
	}{
		{300, 100, 107.5},
		{150, 100, 53.7},
		{72, 50, 51.6},
		{300, 0, 0},
	}

	for _, tc := range cases {
		if got := GridPixelSize(tc.dpi, tc.scale); got != tc.want {
			t.Errorf("GridPixelSize(%d, %d) = %v, want %v", tc.dpi, tc.scale, got, tc.want)
		}
	}
}
