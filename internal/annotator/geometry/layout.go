package geometry

import (
	"math"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
)

// ============================================================
// Grid Layout Calculator
// ============================================================

const (
	// GridModuleMM: реальный размер одного модуля сетки.
	GridModuleMM = 910.0
	// MMPerPoint: миллиметров в одном пункте PDF (25.4 / 72).
	MMPerPoint = 0.352778
	mmPerInch  = 25.4
)

// GridDimensionsFromCrop пересчитывает сетку целиком по кропу и масштабу 1:scale.
// scale должен быть > 0, это проверяет вызывающая сторона.
func GridDimensionsFromCrop(crop models.CropRegion, scale int) models.GridDimensions {
	return models.GridDimensions{
		WidthGrids:  gridsFor(crop.Width, scale),
		HeightGrids: gridsFor(crop.Height, scale),
	}
}

func gridsFor(points float64, scale int) int {
	realMM := points * MMPerPoint * float64(scale)
	n := int(math.Round(realMM / GridModuleMM))
	if n < 1 {
		return 1
	}
	return n
}

// GridPixelSize: размер модуля в пикселях экспорта при данном dpi,
// округленный до 0.1. Используется только в метаданных.
func GridPixelSize(dpi, scale int) float64 {
	if scale <= 0 {
		return 0
	}
	px := (GridModuleMM / mmPerInch) * (float64(dpi) / float64(scale))
	return math.Round(px*10) / 10
}
