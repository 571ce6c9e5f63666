package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MetadataVersion помечает формат объединенного документа.
const MetadataVersion = "integrated_v1.0"

// Поля Phase 1, переносимые как есть (null, если нет).
var phase1Fields = []string{
	"crop_id",
	"original_pdf",
	"floor",
	"grid_dimensions",
	"scale_info",
	"building_context",
	"grid_module_info",
	"crop_bounds_in_original",
	"structural_constraints",
	"floor_requirements",
}

// Списки Phase 2, по умолчанию пустые.
var phase2Lists = []string{
	"structural_elements",
	"zones",
	"stair_info",
}

// missingSide: отсутствующая сторона сетки, формат существующих датасетов.
const missingSide = "None"

var promptTags = []string{"japanese_house", "architectural_plan", "910mm_grid"}

// ============================================================
// Integrated document
// ============================================================

// Integrated: результат слияния Phase 1 и Phase 2 одного кадра.
type Integrated struct {
	Hints  TrainingHints
	Prompt string

	doc *document
}

func (d *Integrated) MarshalJSON() ([]byte, error) {
	return d.doc.MarshalJSON()
}

// Merge объединяет метаданные кадра (Phase 1) и разметку (Phase 2).
// Неизвестные поля Phase 1 не переносятся, известные переносятся
// байт в байт (с точностью до форматирования).
func Merge(phase1Data, phase2Data []byte, now time.Time, addPrompt bool) (*Integrated, error) {
	p1, err := decodeObject(phase1Data)
	if err != nil {
		return nil, fmt.Errorf("phase 1: %w", err)
	}
	p2, err := decodeObject(phase2Data)
	if err != nil {
		return nil, fmt.Errorf("phase 2: %w", err)
	}

	grid, err := parseGrid(raw(p1, "grid_dimensions"))
	if err != nil {
		return nil, fmt.Errorf("phase 1 grid_dimensions: %w", err)
	}
	scale, err := subObject(raw(p1, "scale_info"))
	if err != nil {
		return nil, fmt.Errorf("phase 1 scale_info: %w", err)
	}
	annotation, err := subObject(raw(p2, "annotation_metadata"))
	if err != nil {
		return nil, fmt.Errorf("phase 2 annotation_metadata: %w", err)
	}

	doc := newDocument()
	for _, key := range phase1Fields {
		doc.Set(key, rawOr(p1, key, null))
	}
	for _, key := range phase2Lists {
		doc.Set(key, rawOr(p2, key, json.RawMessage("[]")))
	}
	doc.Set("validation_status", rawOr(p2, "validation_status", null))

	timestamps := newDocument()
	timestamps.Set("phase1_created", rawOr(p1, "timestamp", null))
	timestamps.Set("phase2_created", rawOr(annotation, "annotation_time", null))
	timestamps.Set("integrated_created", now.Format(time.RFC3339))
	doc.Set("timestamps", timestamps)
	doc.Set("metadata_version", MetadataVersion)

	meta := toDocument(annotation)
	meta.Set("floor_type", rawOr(p1, "floor", null))
	meta.Set("grid_resolution", grid.resolution())
	meta.Set("drawing_scale", rawOr(scale, "drawing_scale", null))
	doc.Set("annotation_metadata", meta)

	hints, err := CalculateTrainingHints(rawOr(p2, "structural_elements", json.RawMessage("[]")), grid)
	if err != nil {
		return nil, fmt.Errorf("phase 2 structural_elements: %w", err)
	}
	doc.Set("training_hints", hints)

	out := &Integrated{Hints: hints, doc: doc}
	if addPrompt {
		out.Prompt = GeneratePrompt(grid, stringValue(raw(p1, "floor")), scale, hints)
		out.doc.Set("generated_prompt", out.Prompt)
	}
	return out, nil
}

// ============================================================
// Grid
// ============================================================

// Grid: grid_dimensions Phase 1. Отсутствующие стороны равны nil
// и выводятся как None, как в ранее собранных датасетах.
type Grid struct {
	Present     bool
	WidthGrids  *int
	HeightGrids *int
}

func parseGrid(data json.RawMessage) (Grid, error) {
	obj, err := subObject(data)
	if err != nil {
		return Grid{}, err
	}
	g := Grid{Present: obj.Len() > 0}
	if g.WidthGrids, err = intField(obj, "width_grids"); err != nil {
		return Grid{}, err
	}
	if g.HeightGrids, err = intField(obj, "height_grids"); err != nil {
		return Grid{}, err
	}
	return g, nil
}

func (g Grid) resolution() string {
	return side(g.WidthGrids) + "x" + side(g.HeightGrids)
}

func side(v *int) string {
	if v == nil {
		return missingSide
	}
	return strconv.Itoa(*v)
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// ============================================================
// Training hints
// ============================================================

// TypeCount: число элементов одного типа.
type TypeCount struct {
	Type  string
	Count int
}

// ElementCounts сохраняет порядок первого появления типа.
type ElementCounts []TypeCount

func (c ElementCounts) MarshalJSON() ([]byte, error) {
	doc := newDocument()
	for _, tc := range c {
		doc.Set(tc.Type, tc.Count)
	}
	return doc.MarshalJSON()
}

func (c ElementCounts) add(elemType string) ElementCounts {
	for i := range c {
		if c[i].Type == elemType {
			c[i].Count++
			return c
		}
	}
	return append(c, TypeCount{Type: elemType, Count: 1})
}

func (c ElementCounts) count(elemType string) int {
	for _, tc := range c {
		if tc.Type == elemType {
			return tc.Count
		}
	}
	return 0
}

type TrainingHints struct {
	TotalAreaGrids     int           `json:"total_area_grids"`
	HasEntrance        bool          `json:"has_entrance"`
	HasStair           bool          `json:"has_stair"`
	HasBalcony         bool          `json:"has_balcony"`
	ElementCounts      ElementCounts `json:"element_counts"`
	EstimatedRoomCount int           `json:"estimated_room_count"`
}

// CalculateTrainingHints считает признаки для обучения по списку
// элементов. Элемент без строкового type считается "unknown".
func CalculateTrainingHints(elements json.RawMessage, grid Grid) (TrainingHints, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(elements, &items); err != nil {
		return TrainingHints{}, err
	}

	counts := ElementCounts{}
	for _, item := range items {
		elemType := "unknown"
		if t, ok := item["type"]; ok {
			var s string
			if json.Unmarshal(t, &s) == nil {
				elemType = s
			}
		}
		counts = counts.add(elemType)
	}

	return TrainingHints{
		TotalAreaGrids:     valueOr(grid.WidthGrids, 0) * valueOr(grid.HeightGrids, 0),
		HasEntrance:        counts.count("entrance") > 0,
		HasStair:           counts.count("stair") > 0,
		HasBalcony:         counts.count("balcony") > 0,
		ElementCounts:      counts,
		EstimatedRoomCount: EstimateRoomCount(counts.count("balcony"), grid),
	}, nil
}

// EstimateRoomCount: LDK + спальни (по балконам, не меньше одной, +1 для
// сетки больше 80 модулей) + санузел. Без сетки считается 6x10.
func EstimateRoomCount(balconies int, grid Grid) int {
	const (
		livingRooms = 1
		wetAreas    = 1
	)

	bedrooms := max(1, balconies)
	if valueOr(grid.WidthGrids, 6)*valueOr(grid.HeightGrids, 10) > 80 {
		bedrooms++
	}
	return livingRooms + bedrooms + wetAreas
}

// ============================================================
// Prompt
// ============================================================

// GeneratePrompt собирает текстовую подсказку для обучения:
// grid_WxH, floor_F, scale_S, module_Nmm, <type>_<count>..., rooms_N и теги.
func GeneratePrompt(grid Grid, floor string, scale *rawObject, hints TrainingHints) string {
	var parts []string

	if grid.Present {
		parts = append(parts, "grid_"+grid.resolution())
	}
	if floor != "" {
		parts = append(parts, "floor_"+floor)
	}
	if scale.Len() > 0 {
		drawingScale := "1:100"
		if v, ok := scale.Get("drawing_scale"); ok {
			drawingScale = text(v)
		}
		gridMM := "910"
		if v, ok := scale.Get("grid_mm"); ok {
			gridMM = text(v)
		}
		parts = append(parts, "scale_"+drawingScale, "module_"+gridMM+"mm")
	}
	for _, tc := range hints.ElementCounts {
		parts = append(parts, fmt.Sprintf("%s_%d", tc.Type, tc.Count))
	}
	if hints.EstimatedRoomCount > 0 {
		parts = append(parts, fmt.Sprintf("rooms_%d", hints.EstimatedRoomCount))
	}
	parts = append(parts, promptTags...)

	return strings.Join(parts, ", ")
}

// ============================================================
// helpers
// ============================================================

func raw(o *rawObject, key string) json.RawMessage {
	v, _ := o.Get(key)
	return v
}

func rawOr(o *rawObject, key string, def json.RawMessage) json.RawMessage {
	if v := raw(o, key); v != nil {
		return v
	}
	return def
}

// subObject декодирует вложенный объект; отсутствие и null дают пустой.
func subObject(data json.RawMessage) (*rawObject, error) {
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), null) {
		return newRawObject(), nil
	}
	return decodeObject(data)
}

func intField(o *rawObject, key string) (*int, error) {
	data := raw(o, key)
	if data == nil || bytes.Equal(bytes.TrimSpace(data), null) {
		return nil, nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &v, nil
}

// text: строка без кавычек или исходный текст числа.
func text(data json.RawMessage) string {
	var s string
	if json.Unmarshal(data, &s) == nil {
		return s
	}
	return string(bytes.TrimSpace(data))
}

func stringValue(data json.RawMessage) string {
	if data == nil {
		return ""
	}
	var s string
	if json.Unmarshal(data, &s) != nil {
		return ""
	}
	return s
}
