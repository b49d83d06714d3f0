package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	BasePath string `env:"PMS_BASEPATH,default=./data" validate:"required"`
	Port     string `env:"PMS_PORT,default=:8080" validate:"required"`
	Mode     string `env:"PMS_MODE,default=debug" validate:"oneof=debug release test"`
	LogLevel string `env:"PMS_LOG_LEVEL,default=INFO"`

	PreviewMaxPages       int    `env:"PMS_PREVIEW_MAX_PAGES,default=5" validate:"gte=0"`
	PreviewWorkers        int    `env:"PMS_PREVIEW_WORKERS,default=4" validate:"gte=1,lte=64"`
	PreviewMaxFramePixels int    `env:"PMS_PREVIEW_MAX_FRAME_PIXELS,default=67108864" validate:"gte=0"`
	PreviewFormat         string `env:"PMS_PREVIEW_FORMAT,default=png" validate:"oneof=png jpeg jpg"`
	PreviewQuality        int    `env:"PMS_PREVIEW_QUALITY,default=80" validate:"gte=1,lte=100"`
	PreviewMaxWidth       int    `env:"PMS_PREVIEW_MAX_WIDTH,default=0" validate:"gte=0"`
	PreviewCacheSize      int    `env:"PMS_PREVIEW_CACHE_SIZE,default=16" validate:"gte=1"`

	ResourceMaxAge time.Duration `env:"PMS_RESOURCE_MAX_AGE,default=1h" validate:"gte=0"`
	RemoteStoreURL string        `env:"PMS_REMOTE_STORE_URL" validate:"omitempty,url"`
	FetchTimeout   time.Duration `env:"PMS_FETCH_TIMEOUT,default=30s" validate:"gt=0"`
	MaxUploadMB    int64         `env:"PMS_MAX_UPLOAD_MB,default=100" validate:"gte=1"`
	AllowedOrigins string        `env:"PMS_ALLOWED_ORIGINS,default=*"`
}

// loadConfig reads an optional .env file and then the environment.
func loadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// A bare port number gets the leading colon.
	if config.Port != "" && config.Port[0] != ':' && !strings.Contains(config.Port, ":") {
		config.Port = ":" + config.Port
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Origins splits PMS_ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
