package models

import "time"

// ============================================================
// Grid
// ============================================================

// GridDimensions: размер сетки в модулях (910 мм), обе стороны >= 1.
type GridDimensions struct {
	WidthGrids  int `json:"width_grids"`
	HeightGrids int `json:"height_grids"`
}

// Valid сообщает, что обе стороны положительные.
func (d GridDimensions) Valid() bool {
	return d.WidthGrids > 0 && d.HeightGrids > 0
}

// GridPoint: точка в координатах сетки.
type GridPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ============================================================
// PDF space
// ============================================================

// CropRegion задается в пунктах PDF (1 pt = 1/72 дюйма).
type CropRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageBox: MediaBox исходной страницы в пунктах. X, Y: левый нижний
// угол, у большинства PDF (0, 0).
type PageBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains проверяет, что crop целиком лежит внутри страницы.
func (p PageBox) Contains(c CropRegion) bool {
	const eps = 1e-6
	return c.X >= p.X-eps && c.Y >= p.Y-eps &&
		c.X+c.Width <= p.X+p.Width+eps &&
		c.Y+c.Height <= p.Y+p.Height+eps
}

// ============================================================
// Validation
// ============================================================

type ValidationResult struct {
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// ============================================================
// Session
// ============================================================

// Session: состояние разметки одного кропа. Список элементов
// принадлежит сессии, ядро геометрии возвращает новые списки.
type Session struct {
	ID        string              `json:"id"`
	PDFName   string              `json:"pdf_name"`
	Page      PageBox             `json:"page"`
	Floor     string              `json:"floor"`
	Scale     int                 `json:"scale"`
	DPI       int                 `json:"dpi"`
	Crop      *CropRegion         `json:"crop"`
	Grid      GridDimensions      `json:"grid_dimensions"`
	Elements  []StructuralElement `json:"structural_elements"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}
