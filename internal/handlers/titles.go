package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/lawarchive/internal/service"
)

// TitlesHandler lists titles with current section counts.
func TitlesHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		titles, err := archive.ListTitles(c.UserContext())
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(titles)
	}
}

func StatsHandler(stats *service.StatsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summary, err := stats.Calculate(c.UserContext())
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(summary)
	}
}
