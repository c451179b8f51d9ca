package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jjenkins/lawarchive/internal/service"
)

// Register mounts the HTML pages, the JSON API and /metrics.
func Register(app *fiber.App, archive *service.Archive) {
	stats := service.NewStatsService(archive.Backend())

	app.Get("/", HomeHandler(archive, stats))
	app.Get("/search", SearchPageHandler(archive))
	app.Get("/sections/:title/:section", SectionPageHandler(archive))

	api := app.Group("/api")
	api.Get("/titles", TitlesHandler(archive))
	api.Get("/stats", StatsHandler(stats))
	api.Get("/search", SearchHandler(archive))
	api.Get("/sources/:id/versions", VersionsHandler(archive))
	api.Get("/sections/:title/:section", SectionHandler(archive))
	api.Get("/sections/:title/:section/references-to", ReferencesToHandler(archive))
	api.Get("/sections/:title/:section/referenced-by", ReferencedByHandler(archive))
	api.Get("/sections/:title/:section/history", HistoryHandler(archive))
	api.Post("/rebuild", RebuildHandler(archive))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
