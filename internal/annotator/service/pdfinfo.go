package service

import (
	"errors"
	"fmt"
	"io"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ============================================================
// PDF page geometry
// ============================================================

var ErrNoMediaBox = errors.New("page has no media box")

// ReadPageBox читает MediaBox страницы page (с 1). Растеризация и
// декодирование содержимого сюда не входят, нужен только размер.
func ReadPageBox(r io.ReadSeeker, page int) (models.PageBox, error) {
	ctx, err := api.ReadContext(r, model.NewDefaultConfiguration())
	if err != nil {
		return models.PageBox{}, fmt.Errorf("read PDF context: %w", err)
	}

	if page < 1 || page > ctx.PageCount {
		return models.PageBox{}, fmt.Errorf("page number %d out of range [1, %d]", page, ctx.PageCount)
	}

	_, _, attrs, err := ctx.PageDict(page, false)
	if err != nil {
		return models.PageBox{}, fmt.Errorf("page dict %d: %w", page, err)
	}
	if attrs == nil || attrs.MediaBox == nil {
		return models.PageBox{}, fmt.Errorf("page %d: %w", page, ErrNoMediaBox)
	}

	return pageBox(attrs.MediaBox), nil
}

// pageBox сохраняет начало MediaBox: у страниц, вырезанных из
// больших листов, оно часто не в (0, 0).
func pageBox(r *types.Rectangle) models.PageBox {
	return models.PageBox{
		X:      r.LL.X,
		Y:      r.LL.Y,
		Width:  r.Width(),
		Height: r.Height(),
	}
}
