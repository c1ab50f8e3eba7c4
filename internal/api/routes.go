// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sheetviz/backend/internal/logger"
	"github.com/sheetviz/backend/internal/state"
	"github.com/sheetviz/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Storage  storage.Store
	State    *state.Store
	Uploads  UploadService
	Charts   ChartService
	Renderer ChartRenderer
	Users    UserDirectory
	Scene    SceneOptions
	Usage    func() int64
	Logger   logger.Logger
	Version  string
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Upload UploadHandler
	Chart  ChartHandler
	State  StateHandler
	User   UserHandler
	Stream StreamHandler
	users  UserDirectory
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version, deps.State, deps.Uploads),
		Upload: NewUploadHandler(deps.Storage, deps.State, deps.Uploads, deps.Logger),
		Chart:  NewChartHandler(deps.State, deps.Charts, deps.Renderer, deps.Logger),
		State:  NewStateHandler(deps.State, deps.Charts, deps.Usage),
		User:   NewUserHandler(deps.Users),
		Stream: NewStreamHandler(deps.State, deps.Scene, deps.Logger),
		users:  deps.Users,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	api := e.Group("/api")

	// Health check
	api.GET("/health", handlers.Health.HandleHealth)

	// Upload routes
	uploadGroup := api.Group("/uploads")
	uploadGroup.POST("", handlers.Upload.HandleSubmit)
	uploadGroup.GET("", handlers.Upload.HandleListUploads)
	uploadGroup.GET("/state", handlers.Upload.HandleUploadState)
	uploadGroup.POST("/reset", handlers.Upload.HandleReset)
	uploadGroup.GET("/:id", handlers.Upload.HandleGetUpload)

	api.GET("/columns", handlers.State.HandleGetColumns)

	// Chart routes
	chartGroup := api.Group("/charts")
	chartGroup.POST("", handlers.Chart.HandleGenerate)
	chartGroup.GET("", handlers.Chart.HandleListCharts)
	chartGroup.GET("/current", handlers.Chart.HandleGetCurrent)
	chartGroup.PUT("/current", handlers.Chart.HandleSetCurrent)
	chartGroup.GET("/:id", handlers.Chart.HandleGetChart)
	chartGroup.GET("/:id/series", handlers.Chart.HandleGetSeries)
	chartGroup.GET("/:id/data/msgpack", handlers.Chart.HandleGetDataMsgpack)
	chartGroup.GET("/:id/export.png", handlers.Chart.HandleExportPNG)
	chartGroup.GET("/:id/export.docx", handlers.Chart.HandleExportDocument)

	// State routes
	api.GET("/state", handlers.State.HandleGetState)
	api.DELETE("/state/error", handlers.State.HandleClearError)
	api.GET("/dashboard/stats", handlers.State.HandleDashboardStats)

	// User routes
	api.GET("/me", handlers.User.HandleMe)
	adminGroup := api.Group("/admin", RequireAdmin(handlers.users))
	adminGroup.GET("/users", handlers.User.HandleListUsers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/state", handlers.Stream.HandleStateStream)
	e.GET("/api/charts/:id/scene", handlers.Stream.HandleScene)
}

// MiddlewareOptions configures SetupMiddleware
type MiddlewareOptions struct {
	EnableCORS     bool
	AllowOrigins   string
	BodyLimit      string
	RequestLogging bool
	ShowDetails    bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions, log logger.Logger) {
	if log == nil {
		log = logger.NewNop()
	}

	// Use custom error handler
	e.HTTPErrorHandler = NewErrorHandler(log, opts.ShowDetails)

	e.Use(middleware.Recover())

	if opts.EnableCORS {
		origins := []string{"*"}
		if opts.AllowOrigins != "" {
			origins = splitList(opts.AllowOrigins)
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, HeaderUserID},
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if opts.RequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogURI:     true,
			LogStatus:  true,
			LogMethod:  true,
			LogLatency: true,
			LogError:   true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				details := map[string]interface{}{
					"method":  v.Method,
					"uri":     v.URI,
					"status":  v.Status,
					"latency": v.Latency.String(),
				}
				if v.Error != nil {
					details["error"] = v.Error.Error()
				}
				log.Info("http", "request", details)
				return nil
			},
		}))
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
