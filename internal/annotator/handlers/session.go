package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/geometry"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/mapper"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/service"

	"github.com/gofiber/fiber/v3"
)

// previewCellPx: размер ячейки превью, если холст не указан.
const previewCellPx = 50

// ============================================================
// Session Handler
// ============================================================

type SessionHandler struct {
	sessions *service.SessionManager
	renderer *mapper.Renderer
}

func NewSessionHandler(sessions *service.SessionManager, renderer *mapper.Renderer) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		renderer: renderer,
	}
}

type createRequest struct {
	PDFName    string  `json:"pdf_name"`
	PageX      float64 `json:"page_x"`
	PageY      float64 `json:"page_y"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
	Floor      string  `json:"floor"`
	Scale      int     `json:"scale"`
	DPI        int     `json:"dpi"`
}

type scaleRequest struct {
	Scale int `json:"scale"`
	DPI   int `json:"dpi"`
}

type floorRequest struct {
	Floor string `json:"floor"`
}

type transformRequest struct {
	CanvasWidth  float64 `json:"canvas_width"`
	CanvasHeight float64 `json:"canvas_height"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Snap         bool    `json:"snap"`
}

// elementRequest принимает три формы: прямоугольник в модулях сетки,
// прямоугольник в пикселях холста (canvas_*) или стену (line_start/line_end).
type elementRequest struct {
	Type string `json:"type"`
	Name string `json:"name"`

	GridX      *float64 `json:"grid_x"`
	GridY      *float64 `json:"grid_y"`
	GridWidth  *float64 `json:"grid_width"`
	GridHeight *float64 `json:"grid_height"`

	CanvasWidth  float64 `json:"canvas_width"`
	CanvasHeight float64 `json:"canvas_height"`
	CanvasX1     float64 `json:"canvas_x1"`
	CanvasY1     float64 `json:"canvas_y1"`
	CanvasX2     float64 `json:"canvas_x2"`
	CanvasY2     float64 `json:"canvas_y2"`

	LineStart     *models.GridPoint `json:"line_start"`
	LineEnd       *models.GridPoint `json:"line_end"`
	WallThickness float64           `json:"wall_thickness"`
}

// Create создает сессию по размеру страницы.
func (h *SessionHandler) Create(c fiber.Ctx) error {
	var req createRequest
	if err := decodeBody(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s, err := h.sessions.Create(context.Background(), service.CreateParams{
		PDFName: req.PDFName,
		Page:    models.PageBox{X: req.PageX, Y: req.PageY, Width: req.PageWidth, Height: req.PageHeight},
		Floor:   req.Floor,
		Scale:   req.Scale,
		DPI:     req.DPI,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(s)
}

// CreateFromPDF принимает multipart file (+page, floor, scale, dpi).
func (h *SessionHandler) CreateFromPDF(c fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}
	if ext := strings.ToLower(filepath.Ext(fileHeader.Filename)); ext != ".pdf" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid file type"})
	}

	page, err := formInt(c, "page", 1)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	scale, err := formInt(c, "scale", 0)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	dpi, err := formInt(c, "dpi", 0)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to open file"})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
	}

	s, err := h.sessions.CreateFromPDF(context.Background(), fileHeader.Filename, data, page, service.CreateParams{
		Floor: c.FormValue("floor"),
		Scale: scale,
		DPI:   dpi,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidPage) || errors.Is(err, service.ErrInvalidScale) || errors.Is(err, service.ErrInvalidDPI) {
			return writeError(c, err)
		}
		log.Printf("[ANNOTATOR] pdf upload error: %v", err)
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unreadable PDF"})
	}
	return c.Status(http.StatusCreated).JSON(s)
}

func (h *SessionHandler) Get(c fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(s)
}

func (h *SessionHandler) List(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"sessions": h.sessions.List()})
}

// Delete: сброс сессии.
func (h *SessionHandler) Delete(c fiber.Ctx) error {
	if err := h.sessions.Delete(context.Background(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *SessionHandler) SetCrop(c fiber.Ctx) error {
	var crop models.CropRegion
	if err := decodeBody(c, &crop); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return h.respond(c)(h.sessions.SetCrop(context.Background(), c.Params("id"), crop))
}

func (h *SessionHandler) ClearCrop(c fiber.Ctx) error {
	return h.respond(c)(h.sessions.ClearCrop(context.Background(), c.Params("id")))
}

func (h *SessionHandler) SetScale(c fiber.Ctx) error {
	var req scaleRequest
	if err := decodeBody(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return h.respond(c)(h.sessions.SetScale(context.Background(), c.Params("id"), req.Scale, req.DPI))
}

func (h *SessionHandler) SetFloor(c fiber.Ctx) error {
	var req floorRequest
	if err := decodeBody(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return h.respond(c)(h.sessions.SetFloor(context.Background(), c.Params("id"), req.Floor))
}

// Transform переводит точку холста в координаты сетки.
func (h *SessionHandler) Transform(c fiber.Ctx) error {
	var req transformRequest
	if err := decodeBody(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	p, err := h.sessions.Transform(c.Params("id"), service.TransformRequest{
		CanvasWidth:  req.CanvasWidth,
		CanvasHeight: req.CanvasHeight,
		X:            req.X,
		Y:            req.Y,
		Snap:         req.Snap,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(p)
}

// AddElement размещает элемент и возвращает сессию.
func (h *SessionHandler) AddElement(c fiber.Ctx) error {
	var req elementRequest
	if err := decodeBody(c, &req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	elemType, err := models.ParseElementType(req.Type)
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	id := c.Params("id")
	ctx := context.Background()

	switch {
	case elemType == models.ElementWall:
		if req.LineStart == nil || req.LineEnd == nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "line_start and line_end required"})
		}
		return h.respondCreated(c)(h.sessions.PlaceWall(ctx, id, service.WallInput{
			Name:      req.Name,
			Start:     *req.LineStart,
			End:       *req.LineEnd,
			Thickness: req.WallThickness,
		}))

	case req.CanvasWidth != 0 || req.CanvasHeight != 0:
		return h.respondCreated(c)(h.sessions.PlaceCanvasRectangle(ctx, id, service.CanvasRectangleInput{
			Type:         elemType,
			Name:         req.Name,
			CanvasWidth:  req.CanvasWidth,
			CanvasHeight: req.CanvasHeight,
			X1:           req.CanvasX1,
			Y1:           req.CanvasY1,
			X2:           req.CanvasX2,
			Y2:           req.CanvasY2,
		}))

	default:
		if req.GridX == nil || req.GridY == nil || req.GridWidth == nil || req.GridHeight == nil {
			return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "grid_x, grid_y, grid_width and grid_height required"})
		}
		return h.respondCreated(c)(h.sessions.PlaceRectangle(ctx, id, service.RectangleInput{
			Type:   elemType,
			Name:   req.Name,
			X:      *req.GridX,
			Y:      *req.GridY,
			Width:  *req.GridWidth,
			Height: *req.GridHeight,
		}))
	}
}

func (h *SessionHandler) DeleteElement(c fiber.Ctx) error {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "invalid element index"})
	}
	return h.respond(c)(h.sessions.RemoveElement(context.Background(), c.Params("id"), index))
}

func (h *SessionHandler) Undo(c fiber.Ctx) error {
	return h.respond(c)(h.sessions.Undo(context.Background(), c.Params("id")))
}

func (h *SessionHandler) MergeWalls(c fiber.Ctx) error {
	return h.respond(c)(h.sessions.MergeWalls(context.Background(), c.Params("id")))
}

func (h *SessionHandler) Validate(c fiber.Ctx) error {
	res, err := h.sessions.Validate(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// Preview отдает SVG с сеткой и элементами.
func (h *SessionHandler) Preview(c fiber.Ctx) error {
	s, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	if !s.Grid.Valid() {
		return writeError(c, service.ErrNoGrid)
	}

	width, err := queryFloat(c, "canvas_width", float64(s.Grid.WidthGrids*previewCellPx))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	height, err := queryFloat(c, "canvas_height", float64(s.Grid.HeightGrids*previewCellPx))
	if err != nil {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	svg, err := h.renderer.Render(s, width, height)
	if err != nil {
		return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}

	c.Set("Content-Type", "image/svg+xml")
	return c.SendString(svg)
}

// Export пишет Phase 1/Phase 2 JSON. 409, если разметка не прошла проверку.
func (h *SessionHandler) Export(c fiber.Ctx) error {
	res, err := h.sessions.Export(context.Background(), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrValidationFailed) {
			return c.Status(http.StatusConflict).JSON(fiber.Map{
				"error":             res.Validation.Message,
				"validation_status": res.Validation,
			})
		}
		return writeError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// GetExport отдает ранее записанный файл: kind = metadata | elements.
func (h *SessionHandler) GetExport(c fiber.Ctx) error {
	kind := c.Params("kind")
	if kind != "metadata" && kind != "elements" {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{"error": "kind must be metadata or elements"})
	}

	path, err := h.sessions.ExportPath(c.Params("id"), kind)
	if err != nil {
		return writeError(c, err)
	}
	c.Set("Content-Type", "application/json")
	return c.SendFile(path)
}

// ============================================================
// helpers
// ============================================================

func (h *SessionHandler) respond(c fiber.Ctx) func(models.Session, error) error {
	return func(s models.Session, err error) error {
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(s)
	}
}

func (h *SessionHandler) respondCreated(c fiber.Ctx) func(models.Session, error) error {
	return func(s models.Session, err error) error {
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(http.StatusCreated).JSON(s)
	}
}

// writeError переводит ошибки сервиса в HTTP-статусы.
func writeError(c fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrElementIndex),
		errors.Is(err, service.ErrNotExported):
		status = http.StatusNotFound
	case errors.Is(err, geometry.ErrPlacementRejected),
		errors.Is(err, service.ErrInvalidCanvas),
		errors.Is(err, service.ErrCropOutsidePage):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNoGrid),
		errors.Is(err, service.ErrNothingToUndo),
		errors.Is(err, service.ErrValidationFailed):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidScale),
		errors.Is(err, service.ErrInvalidDPI),
		errors.Is(err, service.ErrInvalidPage),
		errors.Is(err, service.ErrInvalidCrop),
		errors.Is(err, service.ErrInvalidFloor),
		errors.Is(err, models.ErrMalformedElement):
		status = http.StatusBadRequest
	default:
		log.Printf("[ANNOTATOR] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func decodeBody(c fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return errors.New("invalid json")
	}
	return nil
}

func queryFloat(c fiber.Ctx, key string, def float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func formInt(c fiber.Ctx, key string, def int) (int, error) {
	raw := c.FormValue(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
