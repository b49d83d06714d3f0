package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pms-api/handlers"
	"pms-api/middleware"
	"pms-api/models"
	"pms-api/preview"
	"pms-api/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	apiPrefix       = "/v1/api"
	janitorInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			log := utils.NewLogger(os.Stderr, config.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config, log)
		},
	}
}

// server is the wired application.
type server struct {
	engine    *gin.Engine
	db        *sql.DB
	resources *preview.ResourceStore
	previews  *handlers.PreviewHandler
}

func newServer(config *Config, log *slog.Logger) (*server, error) {
	if config.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := models.OpenDB(config.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	documents := models.NewDocumentStore(db, config.BasePath)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := preview.NewPrometheusObserver("pms_preview", registry)
	if err != nil {
		db.Close()
		return nil, err
	}

	pipeline, err := newPipeline(config, documents, observer, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	previews := handlers.NewPreviewHandler(pipeline, apiPrefix+"/resources/", log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.CORSMiddleware(config.Origins()))
	r.Use(middleware.ErrorMiddleware(log))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	handlers.RegisterRoutes(r.Group(apiPrefix), &handlers.Handlers{
		Health:    handlers.NewHealthHandler(db, pipeline.Resources),
		Documents: handlers.NewDocumentHandler(documents, config.MaxUploadBytes(), log),
		Previews:  previews,
	})

	return &server{engine: r, db: db, resources: pipeline.Resources, previews: previews}, nil
}

// newPipeline wires the preview pipeline. Documents come from the upstream
// service when PMS_REMOTE_STORE_URL is set and from local storage otherwise.
func newPipeline(config *Config, documents *models.DocumentStore, observer preview.Observer, log *slog.Logger) (*preview.Pipeline, error) {
	cache, err := preview.NewDecodeCache(config.PreviewCacheSize)
	if err != nil {
		return nil, err
	}
	resources := preview.NewResourceStore(config.ResourceMaxAge, observer)
	renderer, err := preview.NewRenderer(&preview.Options{
		Format:   config.PreviewFormat,
		Quality:  config.PreviewQuality,
		MaxWidth: config.PreviewMaxWidth,
	}, resources, log, observer)
	if err != nil {
		return nil, err
	}
	decoder := preview.NewTiffDecoder(preview.DecodeOptions{
		MaxPages:       config.PreviewMaxPages,
		Workers:        config.PreviewWorkers,
		MaxFramePixels: config.PreviewMaxFramePixels,
	}, log, cache, observer)

	pipeline := &preview.Pipeline{
		Store:     documents,
		Decoder:   decoder,
		Renderer:  renderer,
		Resources: resources,
		AllowList: preview.DefaultAllowList,
		DownloadURL: func(documentID string) string {
			return apiPrefix + "/documents/" + url.PathEscape(documentID) + "/download"
		},
		Log:      log,
		Observer: observer,
	}

	if config.RemoteStoreURL != "" {
		log.Info("Using remote document store", "url", config.RemoteStoreURL)
		pipeline.Store = models.NewRemoteStore(config.RemoteStoreURL, config.FetchTimeout, config.MaxUploadBytes())
		pipeline.DownloadURL = func(documentID string) string {
			return config.RemoteStoreURL + "/documents/" + url.PathEscape(documentID) + "/download"
		}
	}
	return pipeline, nil
}

func serve(ctx context.Context, config *Config, log *slog.Logger) error {
	srv, err := newServer(config, log)
	if err != nil {
		return err
	}
	defer srv.db.Close()

	go func() {
		if err := srv.resources.Run(ctx, janitorInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Resource janitor stopped", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              config.Port,
		Handler:           srv.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", config.Port, "base_path", config.BasePath, "mode", config.Mode)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	// Closing the surfaces ends their event streams.
	srv.previews.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
