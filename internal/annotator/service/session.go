package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"seehuhn.de/go/geom/vec"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/geometry"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
)

// AnnotatorVersion пишется в annotation_metadata экспорта.
const AnnotatorVersion = "1.0.0"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidScale     = errors.New("scale must be positive")
	ErrInvalidDPI       = errors.New("dpi must be positive")
	ErrInvalidPage      = errors.New("page size must be positive")
	ErrInvalidCrop      = errors.New("crop width and height must be positive")
	ErrCropOutsidePage  = errors.New("crop region lies outside the page")
	ErrInvalidFloor     = errors.New("floor must not be empty")
	ErrNoGrid           = errors.New("session has no crop region")
	ErrInvalidCanvas    = errors.New("canvas size must be positive")
	ErrElementIndex     = errors.New("element index out of range")
	ErrNothingToUndo    = errors.New("no elements to undo")
	ErrValidationFailed = errors.New("validation failed")
	ErrNotExported      = errors.New("session has not been exported")
	ErrNoFileStorage    = errors.New("file storage is not configured")
)

// Store: постоянное хранилище сессий (repository.Repository).
type Store interface {
	Save(ctx context.Context, s *models.Session) error
	List(ctx context.Context) ([]*models.Session, []error, error)
	Delete(ctx context.Context, id string) error
}

type Options struct {
	DefaultDPI   int
	DefaultScale int
	Tolerances   geometry.WallTolerances
}

// ============================================================
// Session Manager
// ============================================================

type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*models.Session // sessionID -> session

	store  Store
	files  *FileStorage
	merger *geometry.WallMerger
	opts   Options
	now    func() time.Time
}

// NewSessionManager: files может быть nil, тогда загрузка PDF и экспорт
// возвращают ErrNoFileStorage.
func NewSessionManager(store Store, files *FileStorage, opts Options) *SessionManager {
	if opts.DefaultDPI <= 0 {
		opts.DefaultDPI = 300
	}
	if opts.DefaultScale <= 0 {
		opts.DefaultScale = 100
	}
	if opts.Tolerances == (geometry.WallTolerances{}) {
		opts.Tolerances = geometry.DefaultWallTolerances()
	}
	return &SessionManager{
		sessions: make(map[string]*models.Session),
		store:    store,
		files:    files,
		merger:   geometry.NewWallMerger(opts.Tolerances),
		opts:     opts,
		now:      time.Now,
	}
}

// Restore загружает сохраненные сессии. Битые записи пропускаются.
func (m *SessionManager) Restore(ctx context.Context) (int, error) {
	sessions, errs, err := m.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore sessions: %w", err)
	}
	for _, e := range errs {
		log.Printf("[SESSION] skip session: %v", e)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return len(sessions), nil
}

type CreateParams struct {
	PDFName string
	Page    models.PageBox
	Floor   string
	Scale   int
	DPI     int
}

func (m *SessionManager) Create(ctx context.Context, p CreateParams) (models.Session, error) {
	return m.create(ctx, uuid.NewString(), p)
}

// CreateFromPDF сохраняет загруженный PDF и создает сессию по MediaBox
// страницы page.
func (m *SessionManager) CreateFromPDF(ctx context.Context, pdfName string, data []byte, page int, p CreateParams) (models.Session, error) {
	if m.files == nil {
		return models.Session{}, ErrNoFileStorage
	}
	box, err := ReadPageBox(bytes.NewReader(data), page)
	if err != nil {
		return models.Session{}, err
	}

	id := uuid.NewString()
	if err := m.files.SaveFile(id, m.files.PDFPath(id), data); err != nil {
		return models.Session{}, fmt.Errorf("save pdf: %w", err)
	}

	p.PDFName = pdfName
	p.Page = box
	s, err := m.create(ctx, id, p)
	if err != nil {
		_ = m.files.RemoveSession(id)
		return models.Session{}, err
	}
	return s, nil
}

func (m *SessionManager) create(ctx context.Context, id string, p CreateParams) (models.Session, error) {
	if !(p.Page.Width > 0 && p.Page.Height > 0) || !finite(p.Page.X, p.Page.Y, p.Page.Width, p.Page.Height) {
		return models.Session{}, ErrInvalidPage
	}
	if p.Scale == 0 {
		p.Scale = m.opts.DefaultScale
	}
	if p.DPI == 0 {
		p.DPI = m.opts.DefaultDPI
	}
	if p.Scale < 0 {
		return models.Session{}, fmt.Errorf("%w: got %d", ErrInvalidScale, p.Scale)
	}
	if p.DPI < 0 {
		return models.Session{}, fmt.Errorf("%w: got %d", ErrInvalidDPI, p.DPI)
	}
	floor := strings.TrimSpace(p.Floor)
	if floor == "" {
		floor = geometry.FirstFloor
	}

	now := m.now().UTC()
	s := &models.Session{
		ID:        id,
		PDFName:   p.PDFName,
		Page:      p.Page,
		Floor:     floor,
		Scale:     p.Scale,
		DPI:       p.DPI,
		Elements:  []models.StructuralElement{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(ctx, s); err != nil {
		return models.Session{}, err
	}
	m.sessions[id] = s
	log.Printf("[SESSION] created %s (%s, %.1fx%.1f pt)", id, p.PDFName, p.Page.Width, p.Page.Height)
	return snapshot(s), nil
}

func (m *SessionManager) Get(id string) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return models.Session{}, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return snapshot(s), nil
}

// List возвращает id сессий в порядке создания.
func (m *SessionManager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.ID
	}
	return ids
}

// Delete: сброс сессии: запись, PDF и экспорт удаляются.
func (m *SessionManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	delete(m.sessions, id)
	if m.files != nil {
		if err := m.files.RemoveSession(id); err != nil {
			log.Printf("[SESSION] remove files of %s: %v", id, err)
		}
	}
	log.Printf("[SESSION] deleted %s", id)
	return nil
}

// ============================================================
// Crop / scale / floor
// ============================================================

// SetCrop заменяет область кадрирования и пересчитывает сетку.
// Элементы прежнего кадра отбрасываются.
func (m *SessionManager) SetCrop(ctx context.Context, id string, crop models.CropRegion) (models.Session, error) {
	if !finite(crop.X, crop.Y, crop.Width, crop.Height) || crop.Width <= 0 || crop.Height <= 0 {
		return models.Session{}, ErrInvalidCrop
	}
	return m.update(ctx, id, func(s *models.Session) error {
		if !s.Page.Contains(crop) {
			return fmt.Errorf("%w: %+v not within %+v", ErrCropOutsidePage, crop, s.Page)
		}
		c := crop
		s.Crop = &c
		s.Grid = geometry.GridDimensionsFromCrop(c, s.Scale)
		s.Elements = []models.StructuralElement{}
		return nil
	})
}

func (m *SessionManager) ClearCrop(ctx context.Context, id string) (models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		s.Crop = nil
		s.Grid = models.GridDimensions{}
		s.Elements = []models.StructuralElement{}
		return nil
	})
}

// SetScale меняет масштаб (и dpi, если dpi > 0). Сетка пересчитывается
// заново, элементы вне новой сетки удаляются.
func (m *SessionManager) SetScale(ctx context.Context, id string, scale, dpi int) (models.Session, error) {
	if scale <= 0 {
		return models.Session{}, fmt.Errorf("%w: got %d", ErrInvalidScale, scale)
	}
	if dpi < 0 {
		return models.Session{}, fmt.Errorf("%w: got %d", ErrInvalidDPI, dpi)
	}
	return m.update(ctx, id, func(s *models.Session) error {
		s.Scale = scale
		if dpi > 0 {
			s.DPI = dpi
		}
		if s.Crop == nil {
			return nil
		}
		s.Grid = geometry.GridDimensionsFromCrop(*s.Crop, scale)
		kept := retainFitting(s.Elements, s.Grid)
		if dropped := len(s.Elements) - len(kept); dropped > 0 {
			log.Printf("[SESSION] %s: %d element(s) outside %dx%d grid dropped", s.ID, dropped, s.Grid.WidthGrids, s.Grid.HeightGrids)
		}
		s.Elements = kept
		return nil
	})
}

func (m *SessionManager) SetFloor(ctx context.Context, id, floor string) (models.Session, error) {
	floor = strings.TrimSpace(floor)
	if floor == "" {
		return models.Session{}, ErrInvalidFloor
	}
	return m.update(ctx, id, func(s *models.Session) error {
		s.Floor = floor
		return nil
	})
}

// ============================================================
// Coordinates
// ============================================================

type TransformRequest struct {
	CanvasWidth  float64
	CanvasHeight float64
	X, Y         float64
	Snap         bool
}

// Transform переводит точку холста в координаты сетки сессии.
func (m *SessionManager) Transform(id string, req TransformRequest) (models.GridPoint, error) {
	s, err := m.Get(id)
	if err != nil {
		return models.GridPoint{}, err
	}
	if !s.Grid.Valid() {
		return models.GridPoint{}, ErrNoGrid
	}

	p := vec.Vec2{X: req.X, Y: req.Y}
	var (
		gp models.GridPoint
		ok bool
	)
	if req.Snap {
		gp, ok = geometry.SnapToGridIntersection(p, req.CanvasWidth, req.CanvasHeight, s.Grid)
	} else {
		gp, ok = geometry.CanvasToGrid(p, req.CanvasWidth, req.CanvasHeight, s.Grid)
	}
	if !ok {
		return models.GridPoint{}, fmt.Errorf("%w: %gx%g", ErrInvalidCanvas, req.CanvasWidth, req.CanvasHeight)
	}
	return gp, nil
}

// ============================================================
// Elements
// ============================================================

type RectangleInput struct {
	Type   models.ElementType
	Name   string
	X, Y   float64
	Width  float64
	Height float64
}

func (m *SessionManager) PlaceRectangle(ctx context.Context, id string, in RectangleInput) (models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		if !s.Grid.Valid() {
			return ErrNoGrid
		}
		next, err := geometry.PlaceRectangle(s.Elements, in.Type, in.Name, in.X, in.Y, in.Width, in.Height, s.Grid)
		if err != nil {
			return err
		}
		s.Elements = next
		return nil
	})
}

// CanvasRectangleInput: прямоугольник, нарисованный мышью на холсте:
// два угла в пикселях в любом порядке.
type CanvasRectangleInput struct {
	Type         models.ElementType
	Name         string
	CanvasWidth  float64
	CanvasHeight float64
	X1, Y1       float64
	X2, Y2       float64
}

func (m *SessionManager) PlaceCanvasRectangle(ctx context.Context, id string, in CanvasRectangleInput) (models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		if !s.Grid.Valid() {
			return ErrNoGrid
		}
		a, okA := geometry.CanvasToGrid(vec.Vec2{X: in.X1, Y: in.Y1}, in.CanvasWidth, in.CanvasHeight, s.Grid)
		b, okB := geometry.CanvasToGrid(vec.Vec2{X: in.X2, Y: in.Y2}, in.CanvasWidth, in.CanvasHeight, s.Grid)
		if !okA || !okB {
			return fmt.Errorf("%w: %gx%g", ErrInvalidCanvas, in.CanvasWidth, in.CanvasHeight)
		}

		x, y := math.Min(a.X, b.X), math.Min(a.Y, b.Y)
		w, h := math.Abs(a.X-b.X), math.Abs(a.Y-b.Y)
		next, err := geometry.PlaceRectangle(s.Elements, in.Type, in.Name, x, y, w, h, s.Grid)
		if err != nil {
			return err
		}
		s.Elements = next
		return nil
	})
}

type WallInput struct {
	Name      string
	Start     models.GridPoint
	End       models.GridPoint
	Thickness float64
}

func (m *SessionManager) PlaceWall(ctx context.Context, id string, in WallInput) (models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		if !s.Grid.Valid() {
			return ErrNoGrid
		}
		next, err := geometry.PlaceWall(s.Elements, in.Name, in.Start, in.End, in.Thickness, s.Grid)
		if err != nil {
			return err
		}
		s.Elements = next
		return nil
	})
}

func (m *SessionManager) RemoveElement(ctx context.Context, id string, index int) (models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		if index < 0 || index >= len(s.Elements) {
			return fmt.Errorf("%w: %d of %d", ErrElementIndex, index, len(s.Elements))
		}
		next, err := geometry.RemoveAt(s.Elements, index)
		if err != nil {
			return err
		}
		s.Elements = next
		return nil
	})
}

// Undo удаляет последний размещенный элемент.
func (m *SessionManager) Undo(ctx context.Context, id string) (models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		next, ok := geometry.RemoveLast(s.Elements)
		if !ok {
			return ErrNothingToUndo
		}
		s.Elements = next
		return nil
	})
}

// MergeWalls объединяет отрезки стен сессии в непрерывные стены.
func (m *SessionManager) MergeWalls(ctx context.Context, id string) (models.Session, error) {
	return m.update(ctx, id, func(s *models.Session) error {
		before := len(s.Elements)
		s.Elements = m.merger.MergeWalls(s.Elements)
		log.Printf("[SESSION] %s: walls merged, %d -> %d elements", s.ID, before, len(s.Elements))
		return nil
	})
}

func (m *SessionManager) Validate(id string) (models.ValidationResult, error) {
	s, err := m.Get(id)
	if err != nil {
		return models.ValidationResult{}, err
	}
	return geometry.ValidateComposition(s.Elements, s.Floor), nil
}

// ============================================================
// Export
// ============================================================

type ExportResult struct {
	CropID       string                  `json:"crop_id"`
	MetadataPath string                  `json:"metadata_path"`
	ElementsPath string                  `json:"elements_path"`
	Validation   models.ValidationResult `json:"validation_status"`
}

// Export пишет Phase 1 (метаданные кадра) и Phase 2 (элементы).
// При непройденной валидации ничего не пишется.
func (m *SessionManager) Export(ctx context.Context, id string) (ExportResult, error) {
	s, err := m.Get(id)
	if err != nil {
		return ExportResult{}, err
	}
	if s.Crop == nil || !s.Grid.Valid() {
		return ExportResult{}, ErrNoGrid
	}

	validation := geometry.ValidateComposition(s.Elements, s.Floor)
	if !validation.Passed {
		return ExportResult{Validation: validation}, fmt.Errorf("%w: %s", ErrValidationFailed, validation.Message)
	}

	if m.files == nil {
		return ExportResult{Validation: validation}, ErrNoFileStorage
	}

	base := exportBase(s.PDFName, s.Floor, s.ID)
	stamp := m.now().UTC().Format(time.RFC3339)

	metadata := models.MetadataExport{
		CropID:         base,
		OriginalPDF:    s.PDFName,
		Floor:          s.Floor,
		GridDimensions: s.Grid,
		ScaleInfo: models.ScaleInfo{
			DrawingScale: fmt.Sprintf("1:%d", s.Scale),
			GridMM:       geometry.GridModuleMM,
			GridPx:       geometry.GridPixelSize(s.DPI, s.Scale),
			DPI:          s.DPI,
		},
		CropBounds: *s.Crop,
		Timestamp:  stamp,
	}
	elements := models.ElementsExport{
		CropID:             base,
		Floor:              s.Floor,
		StructuralElements: s.Elements,
		ValidationStatus:   validation,
		AnnotationMetadata: models.AnnotationMetadata{
			AnnotationTime:   stamp,
			AnnotatorVersion: AnnotatorVersion,
			ElementCount:     len(s.Elements),
		},
	}

	res := ExportResult{
		CropID:       base,
		MetadataPath: m.files.MetadataPath(id, base),
		ElementsPath: m.files.ElementsPath(id, base),
		Validation:   validation,
	}
	if err := m.files.EnsureExportDir(id); err != nil {
		return ExportResult{}, err
	}
	if err := m.files.SaveJSON(id, res.MetadataPath, metadata); err != nil {
		return ExportResult{}, fmt.Errorf("write metadata: %w", err)
	}
	if err := m.files.SaveJSON(id, res.ElementsPath, elements); err != nil {
		return ExportResult{}, fmt.Errorf("write elements: %w", err)
	}

	log.Printf("[SESSION] %s exported as %s (%d elements)", id, base, len(s.Elements))
	return res, nil
}

// ExportPath возвращает путь к уже записанному файлу экспорта.
// kind: "metadata" или "elements".
func (m *SessionManager) ExportPath(id, kind string) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}

	if m.files == nil {
		return "", ErrNoFileStorage
	}

	base := exportBase(s.PDFName, s.Floor, s.ID)
	var path string
	switch kind {
	case "metadata":
		path = m.files.MetadataPath(id, base)
	case "elements":
		path = m.files.ElementsPath(id, base)
	default:
		return "", fmt.Errorf("unknown export kind %q", kind)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s %s: %w", id, kind, ErrNotExported)
		}
		return "", err
	}
	return path, nil
}

// ============================================================
// helpers
// ============================================================

// update применяет fn к копии сессии и сохраняет результат.
// При ошибке fn или Save состояние в памяти не меняется.
func (m *SessionManager) update(ctx context.Context, id string, fn func(s *models.Session) error) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[id]
	if !ok {
		return models.Session{}, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}

	next := *cur
	if err := fn(&next); err != nil {
		return models.Session{}, err
	}
	next.UpdatedAt = m.now().UTC()

	if err := m.store.Save(ctx, &next); err != nil {
		return models.Session{}, err
	}
	m.sessions[id] = &next
	return snapshot(&next), nil
}

func snapshot(s *models.Session) models.Session {
	out := *s
	if s.Crop != nil {
		c := *s.Crop
		out.Crop = &c
	}
	out.Elements = append([]models.StructuralElement(nil), s.Elements...)
	if out.Elements == nil {
		out.Elements = []models.StructuralElement{}
	}
	return out
}

func retainFitting(elements []models.StructuralElement, dims models.GridDimensions) []models.StructuralElement {
	const eps = 0.001
	w, h := float64(dims.WidthGrids), float64(dims.HeightGrids)

	out := make([]models.StructuralElement, 0, len(elements))
	for _, e := range elements {
		var r models.Rectangle
		if rect, ok := e.Rect(); ok {
			r = rect
		} else if line, ok := e.Line(); ok {
			r = line.Bounds
		}
		if r.X+r.Width <= w+eps && r.Y+r.Height <= h+eps {
			out = append(out, e)
		}
	}
	return out
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
