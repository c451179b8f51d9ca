package handlers

import (
	"log/slog"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/jjenkins/lawarchive/internal/service"
	"github.com/jjenkins/lawarchive/internal/templates"
)

func render(c *fiber.Ctx, page templ.Component, options ...func(*templ.ComponentHandler)) error {
	handler := adaptor.HTTPHandler(templ.Handler(page, options...))
	return handler(c)
}

func HomeHandler(archive *service.Archive, stats *service.StatsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		metrics := templates.HomeMetrics{}

		summary, err := stats.Calculate(ctx)
		if err != nil {
			slog.Error("failed to calculate stats", "error", err)
		} else {
			metrics.TotalTitles = summary.TotalTitles
			metrics.TotalSections = summary.TotalSections
			metrics.AverageSections = summary.AverageSections
			metrics.LargestTitle = summary.LargestTitle
			metrics.HasData = summary.TotalTitles > 0
		}

		titles, err := archive.ListTitles(ctx)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading titles")
		}

		return render(c, templates.Home(metrics, titles))
	}
}
