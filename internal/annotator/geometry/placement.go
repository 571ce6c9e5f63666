package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
)

// ============================================================
// Element Placement Validator
// ============================================================

const (
	// MinElementSize: минимальная сторона прямоугольника в модулях.
	MinElementSize = 0.1
	// boundsSlack: допуск на выход за правый/нижний край сетки.
	boundsSlack = 0.001
)

var ErrPlacementRejected = errors.New("placement rejected")

// RoundGridCoordinate квантует координату до 0.1 модуля.
func RoundGridCoordinate(v float64) float64 {
	return math.Round(v*10) / 10
}

// ClampRectangle прижимает сырой прямоугольник к границам сетки.
func ClampRectangle(rawX, rawY, rawW, rawH float64, dims models.GridDimensions) (models.Rectangle, error) {
	if !dims.Valid() {
		return models.Rectangle{}, fmt.Errorf("%w: grid is not defined", ErrPlacementRejected)
	}
	if !finite(rawX, rawY, rawW, rawH) {
		return models.Rectangle{}, fmt.Errorf("%w: non-numeric coordinates", ErrPlacementRejected)
	}

	gw, gh := float64(dims.WidthGrids), float64(dims.HeightGrids)

	x := math.Max(0, math.Min(rawX, gw-rawW))
	y := math.Max(0, math.Min(rawY, gh-rawH))
	w := math.Max(MinElementSize, math.Min(rawW, gw-x))
	h := math.Max(MinElementSize, math.Min(rawH, gh-y))

	rect := models.Rectangle{
		X:      RoundGridCoordinate(x),
		Y:      RoundGridCoordinate(y),
		Width:  RoundGridCoordinate(w),
		Height: RoundGridCoordinate(h),
	}

	if rect.Width <= 0 || rect.Height <= 0 {
		return models.Rectangle{}, fmt.Errorf("%w: element has zero area", ErrPlacementRejected)
	}
	if rect.X+rect.Width > gw+boundsSlack || rect.Y+rect.Height > gh+boundsSlack {
		return models.Rectangle{}, fmt.Errorf("%w: element is outside the %dx%d grid",
			ErrPlacementRejected, dims.WidthGrids, dims.HeightGrids)
	}

	return rect, nil
}

// ClampLine прижимает концы стены к сетке и квантует их.
func ClampLine(start, end models.GridPoint, thickness float64, dims models.GridDimensions) (models.LineSegment, error) {
	if !dims.Valid() {
		return models.LineSegment{}, fmt.Errorf("%w: grid is not defined", ErrPlacementRejected)
	}
	if !finite(start.X, start.Y, end.X, end.Y) {
		return models.LineSegment{}, fmt.Errorf("%w: non-numeric coordinates", ErrPlacementRejected)
	}

	clampPoint := func(p models.GridPoint) models.GridPoint {
		return models.GridPoint{
			X: RoundGridCoordinate(clamp(p.X, 0, float64(dims.WidthGrids))),
			Y: RoundGridCoordinate(clamp(p.Y, 0, float64(dims.HeightGrids))),
		}
	}

	line := models.NewLineSegment(clampPoint(start), clampPoint(end), thickness)
	if line.Length() == 0 {
		return models.LineSegment{}, fmt.Errorf("%w: wall has zero length", ErrPlacementRejected)
	}
	return line, nil
}

// ============================================================
// Element list operations (никогда не меняют входной срез)
// ============================================================

// PlaceRectangle добавляет прямоугольный элемент в копию списка.
func PlaceRectangle(elements []models.StructuralElement, elemType models.ElementType, name string,
	rawX, rawY, rawW, rawH float64, dims models.GridDimensions) ([]models.StructuralElement, error) {
	if elemType == models.ElementWall {
		return nil, fmt.Errorf("%w: wall is placed as a line", ErrPlacementRejected)
	}

	rect, err := ClampRectangle(rawX, rawY, rawW, rawH, dims)
	if err != nil {
		return nil, err
	}

	return appendElement(elements, models.StructuralElement{
		Type:     elemType,
		Name:     defaultName(elements, elemType, name),
		Geometry: rect,
	}), nil
}

// PlaceWall добавляет стену в копию списка.
func PlaceWall(elements []models.StructuralElement, name string, start, end models.GridPoint,
	thickness float64, dims models.GridDimensions) ([]models.StructuralElement, error) {
	line, err := ClampLine(start, end, thickness, dims)
	if err != nil {
		return nil, err
	}

	return appendElement(elements, models.StructuralElement{
		Type:     models.ElementWall,
		Name:     defaultName(elements, models.ElementWall, name),
		Geometry: line,
	}), nil
}

// RemoveAt удаляет элемент по индексу.
func RemoveAt(elements []models.StructuralElement, index int) ([]models.StructuralElement, error) {
	if index < 0 || index >= len(elements) {
		return nil, fmt.Errorf("element index %d out of range [0, %d)", index, len(elements))
	}
	out := make([]models.StructuralElement, 0, len(elements)-1)
	out = append(out, elements[:index]...)
	return append(out, elements[index+1:]...), nil
}

// RemoveLast: undo последнего размещения.
func RemoveLast(elements []models.StructuralElement) ([]models.StructuralElement, bool) {
	if len(elements) == 0 {
		return elements, false
	}
	out, _ := RemoveAt(elements, len(elements)-1)
	return out, true
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func appendElement(elements []models.StructuralElement, elem models.StructuralElement) []models.StructuralElement {
	out := make([]models.StructuralElement, 0, len(elements)+1)
	out = append(out, elements...)
	return append(out, elem)
}

func defaultName(elements []models.StructuralElement, elemType models.ElementType, name string) string {
	if name != "" {
		return name
	}
	n := 1
	for _, e := range elements {
		if e.Type == elemType {
			n++
		}
	}
	return fmt.Sprintf("%s_%d", elemType, n)
}

// ============================================================
// Composition rules
// ============================================================

// FirstFloor: этаж, на котором обязателен вход.
const FirstFloor = "1F"

type elementCounts struct {
	stairs    int
	entrances int
	balconies int
}

// ValidateComposition проверяет состав элементов для этажа.
// Стены не учитываются. Правила проверяются в фиксированном порядке,
// побеждает первое нарушенное.
func ValidateComposition(elements []models.StructuralElement, floor string) models.ValidationResult {
	var c elementCounts
	for _, e := range elements {
		if _, ok := e.Rect(); !ok {
			continue
		}
		switch e.Type {
		case models.ElementStair:
			c.stairs++
		case models.ElementEntrance:
			c.entrances++
		case models.ElementBalcony:
			c.balconies++
		}
	}

	if floor == FirstFloor {
		if c.entrances == 0 {
			return failed(fmt.Sprintf("%s requires at least one entrance element", floor))
		}
	} else if c.entrances > 0 {
		return failed(fmt.Sprintf("%s should not have entrance", floor))
	}
	if c.stairs == 0 {
		return failed(fmt.Sprintf("%s requires at least one stair element", floor))
	}

	return models.ValidationResult{
		Passed: true,
		Message: fmt.Sprintf("✅ Annotated: %d stair(s), %d entrance(s), %d balcony(s).",
			c.stairs, c.entrances, c.balconies),
	}
}

func failed(msg string) models.ValidationResult {
	return models.ValidationResult{Passed: false, Message: "❌ " + msg}
}
