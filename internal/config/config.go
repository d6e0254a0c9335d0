package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Brownie44l1/leafcheck/internal/model"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Listen          string        `yaml:"listen"`
	Model           model.Options `yaml:"model"`
	UploadDir       string        `yaml:"uploadDir"`
	DBPath          string        `yaml:"dbPath"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
	ClassifyTimeout time.Duration `yaml:"classifyTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

func DefaultOptions() *Options {
	return &Options{
		Listen: ":8080",
		Model: model.Options{
			Path:         "models/model.onnx",
			MetadataPath: "models/model_metadata.json",
		},
		UploadDir:       "uploads",
		DBPath:          "data/history",
		MaxUploadBytes:  10 << 20,
		ClassifyTimeout: 30 * time.Second,
		AllowedOrigins:  []string{"*"},
	}
}

// LoadFile overlays the YAML document at path onto o. Keys absent from the
// file keep their current values.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadEnv applies environment overrides.
func (o *Options) LoadEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		o.Listen = ":" + port
	}
	o.Model.Path = getEnv("MODEL_PATH", o.Model.Path)
	o.Model.MetadataPath = getEnv("MODEL_METADATA", o.Model.MetadataPath)
	o.Model.SharedLibrary = getEnv("ONNXRUNTIME_LIB", o.Model.SharedLibrary)
	o.UploadDir = getEnv("UPLOAD_DIR", o.UploadDir)
	o.DBPath = getEnv("DB_PATH", o.DBPath)
	if raw := os.Getenv("MAX_UPLOAD_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		o.MaxUploadBytes = n
	}
	if raw := os.Getenv("CLASSIFY_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("CLASSIFY_TIMEOUT: %w", err)
		}
		o.ClassifyTimeout = d
	}
	return nil
}

func (o *Options) Validate() error {
	if o.Listen == "" {
		return fmt.Errorf("listen address not set")
	}
	if o.UploadDir == "" {
		return fmt.Errorf("upload directory not set")
	}
	if o.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", o.MaxUploadBytes)
	}
	if o.ClassifyTimeout < 0 {
		return fmt.Errorf("classify timeout must not be negative")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
