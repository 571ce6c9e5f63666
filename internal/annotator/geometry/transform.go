package geometry

import (
	"math"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"

	"seehuhn.de/go/geom/vec"
)

// ============================================================
// Coordinate Transformer
// ============================================================

// Layout описывает разбиение холста на ячейки сетки.
type Layout struct {
	CellWidth  float64 `json:"cell_width"`
	CellHeight float64 `json:"cell_height"`
	CellSize   float64 `json:"cell_size"`
	OffsetX    float64 `json:"offset_x"`
	OffsetY    float64 `json:"offset_y"`
}

// GridLayout считает размер ячейки для холста canvasW x canvasH.
// ok == false, если холст или сетка вырождены: оверлей не рисуем,
// размещение отклоняем.
func GridLayout(canvasW, canvasH float64, dims models.GridDimensions) (Layout, bool) {
	if canvasW <= 0 || canvasH <= 0 || !dims.Valid() {
		return Layout{}, false
	}

	cellWidth := canvasW / float64(dims.WidthGrids)
	cellHeight := canvasH / float64(dims.HeightGrids)

	return Layout{
		CellWidth:  cellWidth,
		CellHeight: cellHeight,
		CellSize:   math.Min(cellWidth, cellHeight),
	}, true
}

// CanvasToGrid переводит пиксель холста в координаты сетки с clamp по осям.
func CanvasToGrid(p vec.Vec2, canvasW, canvasH float64, dims models.GridDimensions) (models.GridPoint, bool) {
	layout, ok := GridLayout(canvasW, canvasH, dims)
	if !ok || layout.CellWidth == 0 || layout.CellHeight == 0 {
		return models.GridPoint{}, false
	}

	return models.GridPoint{
		X: clamp(p.X/layout.CellWidth, 0, float64(dims.WidthGrids)),
		Y: clamp(p.Y/layout.CellHeight, 0, float64(dims.HeightGrids)),
	}, true
}

// SnapToGridIntersection: как CanvasToGrid, но с привязкой к ближайшей
// линии сетки (рисование стен).
func SnapToGridIntersection(p vec.Vec2, canvasW, canvasH float64, dims models.GridDimensions) (models.GridPoint, bool) {
	layout, ok := GridLayout(canvasW, canvasH, dims)
	if !ok || layout.CellWidth == 0 || layout.CellHeight == 0 {
		return models.GridPoint{}, false
	}

	return models.GridPoint{
		X: clamp(math.Round(p.X/layout.CellWidth), 0, float64(dims.WidthGrids)),
		Y: clamp(math.Round(p.Y/layout.CellHeight), 0, float64(dims.HeightGrids)),
	}, true
}

// GridToCanvas: обратное преобразование.
func GridToCanvas(p models.GridPoint, canvasW, canvasH float64, dims models.GridDimensions) (vec.Vec2, bool) {
	layout, ok := GridLayout(canvasW, canvasH, dims)
	if !ok {
		return vec.Vec2{}, false
	}

	return vec.Vec2{
		X: layout.OffsetX + p.X*layout.CellWidth,
		Y: layout.OffsetY + p.Y*layout.CellHeight,
	}, true
}

// ============================================================
// PDF <-> canvas
// ============================================================

func PDFPointToCanvasPixel(pt, zoom float64) float64 {
	return pt * zoom
}

// CanvasPixelToPDFPoint возвращает 0 при zoom <= 0.
func CanvasPixelToPDFPoint(px, zoom float64) float64 {
	if zoom <= 0 {
		return 0
	}
	return px / zoom
}

// CanvasToPDF переводит точку холста в пункты PDF и зажимает ее
// в область страницы, пересеченную с активным кропом (crop может быть nil).
// Начало холста совпадает с началом MediaBox.
func CanvasToPDF(p vec.Vec2, zoom float64, page models.PageBox, crop *models.CropRegion) (vec.Vec2, bool) {
	if zoom <= 0 || page.Width <= 0 || page.Height <= 0 {
		return vec.Vec2{}, false
	}

	minX, minY := page.X, page.Y
	maxX, maxY := page.X+page.Width, page.Y+page.Height
	if crop != nil {
		minX = math.Max(minX, crop.X)
		minY = math.Max(minY, crop.Y)
		maxX = math.Min(maxX, crop.X+crop.Width)
		maxY = math.Min(maxY, crop.Y+crop.Height)
		if minX > maxX || minY > maxY {
			return vec.Vec2{}, false
		}
	}

	return vec.Vec2{
		X: clamp(page.X+CanvasPixelToPDFPoint(p.X, zoom), minX, maxX),
		Y: clamp(page.Y+CanvasPixelToPDFPoint(p.Y, zoom), minY, maxY),
	}, true
}

// ============================================================
// Helpers
// ============================================================

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
