// Package web serves a built dashboard frontend next to the API.
package web

import (
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

// HasIndex reports whether fsys holds a built frontend.
func HasIndex(fsys fs.FS) bool {
	if fsys == nil {
		return false
	}
	info, err := fs.Stat(fsys, "index.html")
	return err == nil && !info.IsDir()
}

// RegisterStaticRoutes serves fsys for every non-API path. Unknown paths fall
// back to index.html so the frontend router can handle them.
// The API routes should be registered before calling this function.
func RegisterStaticRoutes(e *echo.Echo, fsys fs.FS) {
	fileServer := http.FileServer(http.FS(fsys))

	e.GET("/*", func(c echo.Context) error {
		requestPath := path.Clean(c.Request().URL.Path)
		if strings.HasPrefix(requestPath, "/api/") || requestPath == "/api" {
			return echo.NewHTTPError(http.StatusNotFound, "route not found")
		}

		name := strings.TrimPrefix(requestPath, "/")
		if name == "" {
			return serveIndexHTML(c, fsys)
		}

		info, err := fs.Stat(fsys, name)
		if err != nil {
			return serveIndexHTML(c, fsys)
		}
		if info.IsDir() {
			if _, err := fs.Stat(fsys, path.Join(name, "index.html")); err != nil {
				return serveIndexHTML(c, fsys)
			}
		}

		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

// serveIndexHTML serves the main index.html for SPA routing
func serveIndexHTML(c echo.Context, fsys fs.FS) error {
	indexFile, err := fsys.Open("index.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "index.html not found")
	}
	defer indexFile.Close()

	content, err := io.ReadAll(indexFile)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read index.html")
	}

	return c.HTMLBlob(http.StatusOK, content)
}
