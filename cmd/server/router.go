package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tmarche/bundle-api/internal/api"
	apiMiddleware "github.com/tmarche/bundle-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	exportHandler := api.NewExportHandler(app.exports, app.logger)
	proxyHandler := api.NewProxyHandler(app.fetcher.Client(), app.logger)
	healthHandler := api.NewHealthHandler()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Route("/exports", func(r chi.Router) {
			r.Post("/", exportHandler.Create)
			r.Get("/{id}", exportHandler.GetStatus)
			r.Get("/{id}/archive", exportHandler.GetArchive)
			r.Get("/{id}/manifest", exportHandler.GetManifest)
			r.Get("/{id}/document", exportHandler.GetDocument)
			r.Post("/{id}/retry-images", exportHandler.RetryImages)
			r.Post("/{id}/retry-image", exportHandler.RetryImage)
			r.Delete("/{id}", exportHandler.Delete)
		})

		r.Get("/proxy-image", proxyHandler.ProxyImage)
	})

	return r
}
