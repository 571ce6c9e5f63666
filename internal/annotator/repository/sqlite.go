package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/geometry"
	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/models"
)

// ============================================================
// SQLite Repository
// ============================================================

var (
	ErrNotFound         = errors.New("not found")
	ErrMalformedSession = errors.New("malformed session data")
)

type Repository struct {
	db *sql.DB
}

func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Init применяет миграцию из файла.
func (r *Repository) Init(ctx context.Context, migrationsPath string) error {
	data, err := os.ReadFile(migrationsPath)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

// Ping для readiness probe.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Save записывает сессию целиком (upsert).
func (r *Repository) Save(ctx context.Context, s *models.Session) error {
	elements := s.Elements
	if elements == nil {
		elements = []models.StructuralElement{}
	}
	elementsJSON, err := models.CompactJSON(elements)
	if err != nil {
		return fmt.Errorf("encode elements: %w", err)
	}

	var cropJSON sql.NullString
	if s.Crop != nil {
		data, err := json.Marshal(s.Crop)
		if err != nil {
			return fmt.Errorf("encode crop: %w", err)
		}
		cropJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
        INSERT INTO sessions (id, pdf_name, page_x, page_y, page_width, page_height, floor, scale, dpi, crop_json, elements_json, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            pdf_name = excluded.pdf_name,
            page_x = excluded.page_x,
            page_y = excluded.page_y,
            page_width = excluded.page_width,
            page_height = excluded.page_height,
            floor = excluded.floor,
            scale = excluded.scale,
            dpi = excluded.dpi,
            crop_json = excluded.crop_json,
            elements_json = excluded.elements_json,
            updated_at = excluded.updated_at
    `,
		s.ID, s.PDFName, s.Page.X, s.Page.Y, s.Page.Width, s.Page.Height, s.Floor, s.Scale, s.DPI,
		cropJSON, string(elementsJSON),
		s.CreatedAt.UTC().Format(time.RFC3339Nano), s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT id, pdf_name, page_x, page_y, page_width, page_height, floor, scale, dpi, crop_json, elements_json, created_at, updated_at
        FROM sessions
        WHERE id = ?
    `, id)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return s, nil
}

// List возвращает все читаемые сессии. Битые строки не прерывают
// загрузку: они собираются в errs, чтобы вызывающий мог их залогировать.
func (r *Repository) List(ctx context.Context) (sessions []*models.Session, errs []error, err error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, pdf_name, page_x, page_y, page_width, page_height, floor, scale, dpi, crop_json, elements_json, created_at, updated_at
        FROM sessions
        ORDER BY created_at
    `)
	if err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			if errors.Is(err, ErrMalformedSession) {
				errs = append(errs, err)
				continue
			}
			return nil, nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, errs, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// ============================================================
// Scanning
// ============================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		s            models.Session
		cropJSON     sql.NullString
		elementsJSON string
		createdAt    string
		updatedAt    string
	)
	if err := row.Scan(&s.ID, &s.PDFName, &s.Page.X, &s.Page.Y, &s.Page.Width, &s.Page.Height, &s.Floor, &s.Scale, &s.DPI,
		&cropJSON, &elementsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(elementsJSON), &s.Elements); err != nil {
		return nil, fmt.Errorf("%w: session %s elements: %v", ErrMalformedSession, s.ID, err)
	}
	if cropJSON.Valid {
		var crop models.CropRegion
		if err := json.Unmarshal([]byte(cropJSON.String), &crop); err != nil {
			return nil, fmt.Errorf("%w: session %s crop: %v", ErrMalformedSession, s.ID, err)
		}
		s.Crop = &crop
		if s.Scale > 0 {
			s.Grid = geometry.GridDimensionsFromCrop(crop, s.Scale)
		}
	}

	var err error
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("%w: session %s created_at: %v", ErrMalformedSession, s.ID, err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("%w: session %s updated_at: %v", ErrMalformedSession, s.ID, err)
	}
	return &s, nil
}

// OpenSQLite открывает sqlite по указанному пути.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
