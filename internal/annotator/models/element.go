package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ============================================================
// Structural elements
// ============================================================

type ElementType string

const (
	ElementStair    ElementType = "stair"
	ElementEntrance ElementType = "entrance"
	ElementBalcony  ElementType = "balcony"
	ElementWall     ElementType = "wall"
)

// DefaultWallThickness: толщина стены в модулях, если не задана.
const DefaultWallThickness = 0.15

var ErrMalformedElement = errors.New("malformed structural element")

// ParseElementType проверяет дискриминатор.
func ParseElementType(s string) (ElementType, error) {
	switch t := ElementType(s); t {
	case ElementStair, ElementEntrance, ElementBalcony, ElementWall:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrMalformedElement, s)
}

// Geometry реализуют только Rectangle и LineSegment.
type Geometry interface {
	isGeometry()
}

// Rectangle: вариант для stair/entrance/balcony.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (Rectangle) isGeometry() {}

// LineSegment: вариант для стен. Bounds хранит производный
// прямоугольник (min/max концов) для отрисовки.
type LineSegment struct {
	Start     GridPoint
	End       GridPoint
	Thickness float64
	Bounds    Rectangle
}

func (LineSegment) isGeometry() {}

// Length возвращает евклидову длину отрезка.
func (l LineSegment) Length() float64 {
	return math.Hypot(l.End.X-l.Start.X, l.End.Y-l.Start.Y)
}

// NewLineSegment собирает стену и вычисляет Bounds.
func NewLineSegment(start, end GridPoint, thickness float64) LineSegment {
	if thickness <= 0 {
		thickness = DefaultWallThickness
	}
	return LineSegment{
		Start:     start,
		End:       end,
		Thickness: thickness,
		Bounds:    BoundsOf(start, end),
	}
}

// BoundsOf: осевой прямоугольник, покрывающий две точки.
func BoundsOf(a, b GridPoint) Rectangle {
	minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
	minY, maxY := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
	return Rectangle{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

type StructuralElement struct {
	Type     ElementType
	Name     string
	Geometry Geometry
}

// Rect возвращает прямоугольный вариант, если он есть.
func (e StructuralElement) Rect() (Rectangle, bool) {
	r, ok := e.Geometry.(Rectangle)
	return r, ok
}

// Line возвращает вариант стены, если он есть.
func (e StructuralElement) Line() (LineSegment, bool) {
	l, ok := e.Geometry.(LineSegment)
	return l, ok
}

// ============================================================
// JSON
// ============================================================

// elementJSON фиксирует порядок ключей экспортного формата:
// {type, grid_x, grid_y, grid_width?, grid_height?, line_start?, line_end?, wall_thickness?, name?}
type elementJSON struct {
	Type          string     `json:"type"`
	GridX         float64    `json:"grid_x"`
	GridY         float64    `json:"grid_y"`
	GridWidth     *float64   `json:"grid_width,omitempty"`
	GridHeight    *float64   `json:"grid_height,omitempty"`
	LineStart     *GridPoint `json:"line_start,omitempty"`
	LineEnd       *GridPoint `json:"line_end,omitempty"`
	WallThickness *float64   `json:"wall_thickness,omitempty"`
	Name          string     `json:"name,omitempty"`
}

func (e StructuralElement) MarshalJSON() ([]byte, error) {
	out := elementJSON{Type: string(e.Type), Name: e.Name}

	switch g := e.Geometry.(type) {
	case Rectangle:
		out.GridX, out.GridY = g.X, g.Y
		out.GridWidth, out.GridHeight = &g.Width, &g.Height
	case LineSegment:
		start, end, thickness := g.Start, g.End, g.Thickness
		out.GridX, out.GridY = g.Bounds.X, g.Bounds.Y
		out.GridWidth, out.GridHeight = &g.Bounds.Width, &g.Bounds.Height
		out.LineStart, out.LineEnd = &start, &end
		out.WallThickness = &thickness
	default:
		return nil, fmt.Errorf("%w: %s has no geometry", ErrMalformedElement, e.Type)
	}

	return CompactJSON(out)
}

// CompactJSON: json.Marshal без HTML-экранирования. Имена пишет
// веб-клиент, и <, > и & должны сохраниться байт в байт.
func CompactJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (e *StructuralElement) UnmarshalJSON(data []byte) error {
	var in elementJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedElement, err)
	}

	elemType, err := ParseElementType(in.Type)
	if err != nil {
		return err
	}

	if elemType == ElementWall {
		if in.LineStart == nil || in.LineEnd == nil {
			return fmt.Errorf("%w: wall without line_start/line_end", ErrMalformedElement)
		}
		// толщина по умолчанию только при отсутствии ключа, явный 0 сохраняется
		line := LineSegment{
			Start:     *in.LineStart,
			End:       *in.LineEnd,
			Thickness: DefaultWallThickness,
			Bounds:    BoundsOf(*in.LineStart, *in.LineEnd),
		}
		if in.WallThickness != nil {
			line.Thickness = *in.WallThickness
		}
		// сохраненный bbox оставляем как есть, чтобы не менять байты при повторной записи
		if in.GridWidth != nil && in.GridHeight != nil {
			line.Bounds = Rectangle{X: in.GridX, Y: in.GridY, Width: *in.GridWidth, Height: *in.GridHeight}
		}
		*e = StructuralElement{Type: elemType, Name: in.Name, Geometry: line}
		return nil
	}

	if in.GridWidth == nil || in.GridHeight == nil {
		return fmt.Errorf("%w: %s without grid_width/grid_height", ErrMalformedElement, elemType)
	}
	*e = StructuralElement{
		Type: elemType,
		Name: in.Name,
		Geometry: Rectangle{
			X:      in.GridX,
			Y:      in.GridY,
			Width:  *in.GridWidth,
			Height: *in.GridHeight,
		},
	}
	return nil
}
