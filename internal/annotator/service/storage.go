package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ============================================================
// File Storage
// ============================================================

type FileStorage struct {
	root string
}

func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

func (s *FileStorage) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *FileStorage) PDFPath(sessionID string) string {
	return filepath.Join(s.SessionDir(sessionID), "source.pdf")
}

func (s *FileStorage) ExportDir(sessionID string) string {
	return filepath.Join(s.SessionDir(sessionID), "export")
}

// MetadataPath: Phase 1.
func (s *FileStorage) MetadataPath(sessionID, base string) string {
	return filepath.Join(s.ExportDir(sessionID), base+"_metadata.json")
}

// ElementsPath: Phase 2.
func (s *FileStorage) ElementsPath(sessionID, base string) string {
	return filepath.Join(s.ExportDir(sessionID), base+"_elements.json")
}

func (s *FileStorage) EnsureExportDir(sessionID string) error {
	if err := os.MkdirAll(s.ExportDir(sessionID), 0o755); err != nil {
		return fmt.Errorf("mkdir export dir: %w", err)
	}
	return nil
}

func (s *FileStorage) SaveFile(sessionID, target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}
	return os.WriteFile(target, data, 0o644)
}

// SaveJSON пишет v с отступом 2 пробела и без экранирования юникода/HTML.
func (s *FileStorage) SaveJSON(sessionID, target string, v any) error {
	data, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	return s.SaveFile(sessionID, target, data)
}

// RemoveSession удаляет каталог сессии вместе с экспортом.
func (s *FileStorage) RemoveSession(sessionID string) error {
	return os.RemoveAll(s.SessionDir(sessionID))
}

func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// exportBase строит базовое имя файлов экспорта: <pdf>_<floor>_<id8>.
func exportBase(pdfName, floor, sessionID string) string {
	stem := strings.TrimSuffix(filepath.Base(pdfName), filepath.Ext(pdfName))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "plan"
	}
	stem = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':':
			return '_'
		}
		return r
	}, stem)

	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s_%s", stem, floor, short)
}
