package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/terisuke/pdf-vector-crop-rasterizer/internal/annotator/geometry"
)

// ============================================================
// Configuration
// ============================================================

const DefaultPort = "3000"

type Config struct {
	Port         string
	Environment  string
	ReadTimeout  int
	WriteTimeout int

	// Annotator service
	DBPath         string
	StorageRoot    string
	MigrationsPath string
	DefaultDPI     int
	DefaultScale   int
	Walls          geometry.WallTolerances

	// Gateway
	AnnotatorURL string
}

// yamlConfig: формат файла CONFIG_FILE. Пустые поля не меняют значения
// по умолчанию.
type yamlConfig struct {
	Port         string `yaml:"port"`
	Environment  string `yaml:"env"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`

	Annotator struct {
		DBPath         string                   `yaml:"db_path"`
		StorageRoot    string                   `yaml:"storage_root"`
		MigrationsPath string                   `yaml:"migrations_path"`
		DefaultDPI     int                      `yaml:"default_dpi"`
		DefaultScale   int                      `yaml:"default_scale"`
		Walls          *geometry.WallTolerances `yaml:"walls"`
	} `yaml:"annotator"`

	Gateway struct {
		AnnotatorURL string `yaml:"annotator_url"`
	} `yaml:"gateway"`
}

// Load загружает конфигурацию: значения по умолчанию, затем файл
// CONFIG_FILE (если задан), затем переменные окружения.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           DefaultPort,
		Environment:    "development",
		ReadTimeout:    10,
		WriteTimeout:   10,
		DBPath:         "data/db/annotator.db",
		StorageRoot:    "data/sessions",
		MigrationsPath: "migrations/001_init_sessions.sql",
		DefaultDPI:     300,
		DefaultScale:   100,
		Walls:          geometry.DefaultWallTolerances(),
		AnnotatorURL:   "http://localhost:3003",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Environment = getEnv("ENV", cfg.Environment)
	cfg.ReadTimeout = getEnvAsInt("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getEnvAsInt("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.DBPath = getEnv("ANNOTATOR_DB_PATH", cfg.DBPath)
	cfg.StorageRoot = getEnv("STORAGE_ROOT", cfg.StorageRoot)
	cfg.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.MigrationsPath)
	cfg.DefaultDPI = getEnvAsInt("DEFAULT_DPI", cfg.DefaultDPI)
	cfg.DefaultScale = getEnvAsInt("DEFAULT_SCALE", cfg.DefaultScale)
	cfg.AnnotatorURL = getEnv("ANNOTATOR_URL", cfg.AnnotatorURL)

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.Port, yc.Port)
	setString(&c.Environment, yc.Environment)
	setInt(&c.ReadTimeout, yc.ReadTimeout)
	setInt(&c.WriteTimeout, yc.WriteTimeout)
	setString(&c.DBPath, yc.Annotator.DBPath)
	setString(&c.StorageRoot, yc.Annotator.StorageRoot)
	setString(&c.MigrationsPath, yc.Annotator.MigrationsPath)
	setInt(&c.DefaultDPI, yc.Annotator.DefaultDPI)
	setInt(&c.DefaultScale, yc.Annotator.DefaultScale)
	setString(&c.AnnotatorURL, yc.Gateway.AnnotatorURL)

	if w := yc.Annotator.Walls; w != nil {
		setFloat(&c.Walls.NoiseFloor, w.NoiseFloor)
		setFloat(&c.Walls.EndpointMatch, w.EndpointMatch)
		setFloat(&c.Walls.ChainGap, w.ChainGap)
		setFloat(&c.Walls.CollinearAngle, w.CollinearAngle)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}
