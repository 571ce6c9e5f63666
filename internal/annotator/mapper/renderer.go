package mapper

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"seehuhn.de/go/geom/vec"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/geometry"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
)

// ============================================================
// Renderer
// ============================================================

var strokes = map[models.ElementType]string{
	models.ElementStair:    "#1f77b4",
	models.ElementEntrance: "#d62728",
	models.ElementBalcony:  "#2ca02c",
	models.ElementWall:     "#000",
}

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render собирает SVG-превью сессии: сетка и элементы на холсте
// canvasW x canvasH пикселей.
func (r *Renderer) Render(s models.Session, canvasW, canvasH float64) (string, error) {
	layout, ok := geometry.GridLayout(canvasW, canvasH, s.Grid)
	if !ok {
		return "", fmt.Errorf("grid layout undefined for %gx%g canvas and %dx%d grid",
			canvasW, canvasH, s.Grid.WidthGrids, s.Grid.HeightGrids)
	}

	var elements []string
	elements = append(elements, r.renderGrid(s.Grid, canvasW, canvasH)...)
	for i, e := range s.Elements {
		if svg, ok := r.renderElement(i, e, layout, s.Grid, canvasW, canvasH); ok {
			elements = append(elements, svg)
		}
	}

	var builder strings.Builder
	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	builder.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		formatFloat(canvasW), formatFloat(canvasH), formatFloat(canvasW), formatFloat(canvasH)))
	builder.WriteString("\n")

	for _, elem := range elements {
		builder.WriteString("  ")
		builder.WriteString(elem)
		builder.WriteString("\n")
	}

	builder.WriteString(`</svg>`)
	return builder.String(), nil
}

// ============================================================
// Grid overlay
// ============================================================

func (r *Renderer) renderGrid(dims models.GridDimensions, canvasW, canvasH float64) []string {
	var out []string

	for i := 0; i <= dims.WidthGrids; i++ {
		top, _ := geometry.GridToCanvas(models.GridPoint{X: float64(i)}, canvasW, canvasH, dims)
		bottom, _ := geometry.GridToCanvas(models.GridPoint{X: float64(i), Y: float64(dims.HeightGrids)}, canvasW, canvasH, dims)
		out = append(out, gridLine(top, bottom))
	}
	for j := 0; j <= dims.HeightGrids; j++ {
		left, _ := geometry.GridToCanvas(models.GridPoint{Y: float64(j)}, canvasW, canvasH, dims)
		right, _ := geometry.GridToCanvas(models.GridPoint{X: float64(dims.WidthGrids), Y: float64(j)}, canvasW, canvasH, dims)
		out = append(out, gridLine(left, right))
	}

	return out
}

func gridLine(a, b vec.Vec2) string {
	return fmt.Sprintf(`<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="#ccc" stroke-width="1" />`,
		formatFloat(a.X), formatFloat(a.Y), formatFloat(b.X), formatFloat(b.Y))
}

// ============================================================
// Element renderers
// ============================================================

func (r *Renderer) renderElement(index int, e models.StructuralElement, layout geometry.Layout,
	dims models.GridDimensions, canvasW, canvasH float64) (string, bool) {
	stroke, ok := strokes[e.Type]
	if !ok {
		return "", false
	}
	id := fmt.Sprintf("element-%d", index)

	if rect, ok := e.Rect(); ok {
		origin, ok := geometry.GridToCanvas(models.GridPoint{X: rect.X, Y: rect.Y}, canvasW, canvasH, dims)
		if !ok {
			return "", false
		}
		return fmt.Sprintf(`<rect id="%s" data-type="%s" data-name="%s" x="%s" y="%s" width="%s" height="%s" fill="none" stroke="%s" />`,
			id, e.Type, html.EscapeString(e.Name),
			formatFloat(origin.X), formatFloat(origin.Y),
			formatFloat(rect.Width*layout.CellWidth), formatFloat(rect.Height*layout.CellHeight), stroke), true
	}

	line, ok := e.Line()
	if !ok {
		return "", false
	}
	a, okA := geometry.GridToCanvas(line.Start, canvasW, canvasH, dims)
	b, okB := geometry.GridToCanvas(line.End, canvasW, canvasH, dims)
	if !okA || !okB || a == b {
		return "", false
	}

	points := wallOutline(a, b, line.Thickness*layout.CellSize)

	var path strings.Builder
	path.WriteString(`<path id="`)
	path.WriteString(id)
	path.WriteString(`" data-type="wall" data-name="`)
	path.WriteString(html.EscapeString(e.Name))
	path.WriteString(`" d="M `)
	path.WriteString(formatPoint(points[0]))
	for _, p := range points[1:] {
		path.WriteString(" L ")
		path.WriteString(formatPoint(p))
	}
	path.WriteString(` Z" fill="#555" stroke="`)
	path.WriteString(stroke)
	path.WriteString(`" />`)

	return path.String(), true
}

// wallOutline: четырехугольник толщиной width вокруг отрезка a-b.
func wallOutline(a, b vec.Vec2, width float64) []vec.Vec2 {
	n := b.Sub(a).Normalize().Rot90().Mul(width / 2)
	return []vec.Vec2{a.Add(n), b.Add(n), b.Sub(n), a.Sub(n)}
}

// ============================================================
// Formatting helpers
// ============================================================

func formatFloat(val float64) string {
	return strconv.FormatFloat(val, 'f', -1, 64)
}

func formatPoint(p vec.Vec2) string {
	return formatFloat(p.X) + " " + formatFloat(p.Y)
}
