package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sheetviz/backend/internal/access"
	"github.com/sheetviz/backend/internal/api"
	"github.com/sheetviz/backend/internal/chart"
	"github.com/sheetviz/backend/internal/config"
	"github.com/sheetviz/backend/internal/dataset"
	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/render"
	"github.com/sheetviz/backend/internal/scene"
	"github.com/sheetviz/backend/internal/spreadsheet"
	"github.com/sheetviz/backend/internal/state"
	"github.com/sheetviz/backend/internal/storage"
	"github.com/sheetviz/backend/internal/upload"
	"github.com/sheetviz/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "SheetViz.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewZapLogger(logger.Options{
		FilePath:   cfg.Advanced.LogFile,
		Level:      cfg.Advanced.LogLevel,
		Production: cfg.Advanced.ProductionLogging,
	})
	defer log.Sync()

	if err := run(cfg, configPath, log); err != nil {
		log.Error("server", "server stopped with error", map[string]interface{}{"error": err})
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, configPath string, log logger.Logger) error {
	// Initialize scratch storage
	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory, cfg.MaxUploadBytes())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	users, err := access.LoadDirectory(cfg.Security.UsersFile)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	st := state.NewStore()
	st.OnDrop(func(e state.Event) {
		log.Warn("state", "event dropped for slow subscriber", map[string]interface{}{"event": string(e.Kind)})
	})

	datasets := dataset.NewManager(cfg.Storage.TempDirectory, log)
	defer datasets.Close()

	parsers := spreadsheet.NewRegistry()
	if cfg.Processing.SimulateParsing {
		parsers = spreadsheet.NewSimulatedRegistry()
	}

	if err := checkExtensions(parsers, cfg.AllowedExtensions()); err != nil {
		return err
	}

	machine := upload.NewMachine(st, parsers, upload.Options{
		Delay:      cfg.UploadDelay(),
		Extensions: cfg.AllowedExtensions(),
		MaxBytes:   cfg.MaxUploadBytes(),
		Datasets:   datasets,
		Scratch:    fileStore,
		Logger:     log,
	})
	defer machine.Close()

	generator := chart.NewGenerator(st, chart.Options{
		Delay:   cfg.GenerationDelay(),
		Rows:    datasets,
		MaxRows: cfg.Processing.MaxChartRows,
		Logger:  log,
	})
	defer generator.Close()

	renderer := render.NewRenderer(cfg.RenderCacheTTL(), log)

	e := echo.New()
	e.HideBanner = true

	api.SetupMiddleware(e, api.MiddlewareOptions{
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   cfg.Server.AllowOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		RequestLogging: cfg.Advanced.EnableRequestLogging,
		ShowDetails:    !cfg.Advanced.ProductionLogging,
	}, log)

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return c.IsWebSocket()
			},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Storage:  fileStore,
		State:    st,
		Uploads:  machine,
		Charts:   generator,
		Renderer: renderer,
		Users:    users,
		Scene: api.SceneOptions{
			DefaultWidth:  cfg.Scene.DefaultWidth,
			DefaultHeight: cfg.Scene.DefaultHeight,
			MaxWidth:      cfg.Scene.MaxWidth,
			MaxHeight:     cfg.Scene.MaxHeight,
			FrameInterval: cfg.FrameInterval(),
			Factory:       scene.SoftwareFactory,
		},
		Usage:   fileStore.Usage,
		Logger:  log,
		Version: Version,
	})
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	// Serve a built frontend if one is configured
	if dir := cfg.Server.StaticDirectory; dir != "" {
		fsys := os.DirFS(dir)
		if web.HasIndex(fsys) {
			web.RegisterStaticRoutes(e, fsys)
			log.Info("server", "serving frontend", map[string]interface{}{"dir": dir})
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepScratch(ctx, fileStore, cfg, log)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Info("server", "starting", map[string]interface{}{
		"version":   Version,
		"buildTime": BuildTime,
		"config":    configPath,
		"listen":    cfg.GetServerAddr(),
		"dataDir":   cfg.Storage.DataDirectory,
		"simulate":  cfg.Processing.SimulateParsing,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server", "shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// checkExtensions rejects configured file types no parser can read.
func checkExtensions(parsers *spreadsheet.Registry, exts []string) error {
	if missing := parsers.Unsupported(exts); len(missing) > 0 {
		return fmt.Errorf("no parser for allowed file types: %s", strings.Join(missing, ", "))
	}
	return nil
}

// sweepScratch removes abandoned scratch files until ctx is done.
func sweepScratch(ctx context.Context, store *storage.LocalStore, cfg *config.AppConfig, log logger.Logger) {
	if cfg.ScratchRetention() <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.CleanupOlderThan(cfg.ScratchRetention()); n > 0 {
				log.Info("storage", "removed stale scratch files", map[string]interface{}{"count": n})
			}
		}
	}
}
