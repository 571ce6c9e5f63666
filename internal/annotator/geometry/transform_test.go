package geometry

import (
	"math"
	"testing"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"

	"seehuhn.de/go/geom/vec"
)

func TestGridLayoutCellsCoverCanvas(t *testing.T) {
	cases := []struct {
		w, h float64
		dims models.GridDimensions
	}{
		{600, 1000, models.GridDimensions{WidthGrids: 6, HeightGrids: 10}},
		{333.3, 777.7, models.GridDimensions{WidthGrids: 7, HeightGrids: 3}},
		{1, 1, models.GridDimensions{WidthGrids: 1, HeightGrids: 1}},
		{1024, 768, models.GridDimensions{WidthGrids: 13, HeightGrids: 11}},
	}

	for _, tc := range cases {
		layout, ok := GridLayout(tc.w, tc.h, tc.dims)
		if !ok {
			t.Fatalf("GridLayout(%v, %v, %+v) not ok", tc.w, tc.h, tc.dims)
		}
		if got := layout.CellWidth * float64(tc.dims.WidthGrids); math.Abs(got-tc.w) > 1e-9 {
			t.Errorf("cellWidth*width_grids = %v, want %v", got, tc.w)
		}
		if got := layout.CellHeight * float64(tc.dims.HeightGrids); math.Abs(got-tc.h) > 1e-9 {
			t.Errorf("cellHeight*height_grids = %v, want %v", got, tc.h)
		}
		if layout.CellSize != math.Min(layout.CellWidth, layout.CellHeight) {
			t.Errorf("cellSize = %v, want min of cell sides", layout.CellSize)
		}
		if layout.OffsetX != 0 || layout.OffsetY != 0 {
			t.Errorf("offsets = (%v, %v), want (0, 0)", layout.OffsetX, layout.OffsetY)
		}
	}
}

func TestGridLayoutDegenerate(t *testing.T) {
	good := models.GridDimensions{WidthGrids: 6, HeightGrids: 10}
	cases := []struct {
		name string
		w, h float64
		dims models.GridDimensions
	}{
		{"zero width", 0, 100, good},
		{"negative height", 100, -1, good},
		{"zero grid width", 100, 100, models.GridDimensions{WidthGrids: 0, HeightGrids: 10}},
		{"negative grid height", 100, 100, models.GridDimensions{WidthGrids: 6, HeightGrids: -2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := GridLayout(tc.w, tc.h, tc.dims); ok {
				t.Errorf("GridLayout ok for degenerate input")
			}
			if _, ok := CanvasToGrid(vec.Vec2{X: 1, Y: 1}, tc.w, tc.h, tc.dims); ok {
				t.Errorf("CanvasToGrid ok for degenerate input")
			}
			if _, ok := SnapToGridIntersection(vec.Vec2{X: 1, Y: 1}, tc.w, tc.h, tc.dims); ok {
				t.Errorf("SnapToGridIntersection ok for degenerate input")
			}
		})
	}
}

func TestCanvasToGridClamps(t *testing.T) {
	dims := models.GridDimensions{WidthGrids: 6, HeightGrids: 10}

	got, ok := CanvasToGrid(vec.Vec2{X: -50, Y: 5000}, 600, 1000, dims)
	if !ok {
		t.Fatal("CanvasToGrid not ok")
	}
	if got != (models.GridPoint{X: 0, Y: 10}) {
		t.Errorf("CanvasToGrid = %+v, want {0 10}", got)
	}

	got, _ = CanvasToGrid(vec.Vec2{X: 150, Y: 250}, 600, 1000, dims)
	if got != (models.GridPoint{X: 1.5, Y: 2.5}) {
		t.Errorf("CanvasToGrid = %+v, want {1.5 2.5}", got)
	}
}

func TestSnapToGridIntersection(t *testing.T) {
	dims := models.GridDimensions{WidthGrids: 6, HeightGrids: 10}

	got, ok := SnapToGridIntersection(vec.Vec2{X: 140, Y: 260}, 600, 1000, dims)
	if !ok {
		t.Fatal("SnapToGridIntersection not ok")
	}
	if got != (models.GridPoint{X: 1, Y: 3}) {
		t.Errorf("SnapToGridIntersection = %+v, want {1 3}", got)
	}

	got, _ = SnapToGridIntersection(vec.Vec2{X: 9999, Y: -10}, 600, 1000, dims)
	if got != (models.GridPoint{X: 6, Y: 0}) {
		t.Errorf("SnapToGridIntersection = %+v, want {6 0}", got)
	}
}

func TestCanvasGridRoundTrip(t *testing.T) {
	dims := models.GridDimensions{WidthGrids: 7, HeightGrids: 9}
	const w, h = 813.0, 641.0

	for x := 1.0; x < w; x += 37.3 {
		for y := 1.0; y < h; y += 41.9 {
			p := vec.Vec2{X: x, Y: y}
			g, ok := CanvasToGrid(p, w, h, dims)
			if !ok {
				t.Fatalf("CanvasToGrid(%v) not ok", p)
			}
			back, ok := GridToCanvas(g, w, h, dims)
			if !ok {
				t.Fatalf("GridToCanvas(%v) not ok", g)
			}
			if math.Abs(back.X-x) > 0.01 || math.Abs(back.Y-y) > 0.01 {
				t.Errorf("round trip %v -> %v -> %v", p, g, back)
			}
		}
	}
}

func TestPDFCanvasConversion(t *testing.T) {
	if got := PDFPointToCanvasPixel(72, 1.5); got != 108 {
		t.Errorf("PDFPointToCanvasPixel = %v, want 108", got)
	}
	if got := CanvasPixelToPDFPoint(108, 1.5); got != 72 {
		t.Errorf("CanvasPixelToPDFPoint = %v, want 72", got)
	}
	if got := CanvasPixelToPDFPoint(108, 0); got != 0 {
		t.Errorf("CanvasPixelToPDFPoint with zero zoom = %v, want 0", got)
	}
}

func TestCanvasToPDFClampsToCrop(t *testing.T) {
	page := models.PageBox{Width: 595, Height: 842}
	crop := &models.CropRegion{X: 100, Y: 200, Width: 158, Height: 263}

	got, ok := CanvasToPDF(vec.Vec2{X: 10, Y: 2000}, 2, page, crop)
	if !ok {
		t.Fatal("CanvasToPDF not ok")
	}
	if got != (vec.Vec2{X: 100, Y: 463}) {
		t.Errorf("CanvasToPDF = %v, want {100 463}", got)
	}

	got, _ = CanvasToPDF(vec.Vec2{X: 5000, Y: -5}, 2, page, nil)
	if got != (vec.Vec2{X: 595, Y: 0}) {
		t.Errorf("CanvasToPDF without crop = %v, want {595 0}", got)
	}

	if _, ok := CanvasToPDF(vec.Vec2{}, 0, page, crop); ok {
		t.Error("CanvasToPDF ok with zero zoom")
	}
}

func TestCanvasToPDFOffsetMediaBox(t *testing.T) {
	page := models.PageBox{X: 100, Y: 50, Width: 595, Height: 842}

	got, ok := CanvasToPDF(vec.Vec2{X: 20, Y: 40}, 2, page, nil)
	if !ok {
		t.Fatal("CanvasToPDF not ok")
	}
	if got != (vec.Vec2{X: 110, Y: 70}) {
		t.Errorf("CanvasToPDF = %v, want {110 70}", got)
	}

	got, _ = CanvasToPDF(vec.Vec2{X: 5000, Y: -5}, 2, page, nil)
	if got != (vec.Vec2{X: 695, Y: 50}) {
		t.Errorf("CanvasToPDF clamped = %v, want {695 50}", got)
	}
}
