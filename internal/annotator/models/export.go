package models

// ============================================================
// Phase exports
// ============================================================

// ScaleInfo описывает масштаб чертежа и размер модуля.
type ScaleInfo struct {
	DrawingScale string  `json:"drawing_scale"`
	GridMM       float64 `json:"grid_mm"`
	GridPx       float64 `json:"grid_px"`
	DPI          int     `json:"dpi"`
}

// MetadataExport: Phase 1, файл <base>_metadata.json.
type MetadataExport struct {
	CropID         string         `json:"crop_id"`
	OriginalPDF    string         `json:"original_pdf"`
	Floor          string         `json:"floor"`
	GridDimensions GridDimensions `json:"grid_dimensions"`
	ScaleInfo      ScaleInfo      `json:"scale_info"`
	CropBounds     CropRegion     `json:"crop_bounds_in_original"`
	Timestamp      string         `json:"timestamp"`
}

type AnnotationMetadata struct {
	AnnotationTime   string `json:"annotation_time"`
	AnnotatorVersion string `json:"annotator_version"`
	ElementCount     int    `json:"element_count"`
}

// ElementsExport: Phase 2, файл <base>_elements.json.
type ElementsExport struct {
	CropID             string              `json:"crop_id"`
	Floor              string              `json:"floor"`
	StructuralElements []StructuralElement `json:"structural_elements"`
	ValidationStatus   ValidationResult    `json:"validation_status"`
	AnnotationMetadata AnnotationMetadata  `json:"annotation_metadata"`
}
