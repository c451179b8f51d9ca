package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/service"
)

// HistoryHandler lists every version holding the section, oldest first.
func HistoryHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, err := sectionKey(c)
		if err != nil {
			return errorResponse(c, err)
		}

		versions, err := archive.SectionHistory(c.UserContext(), key)
		if err != nil {
			return errorResponse(c, err)
		}
		if len(versions) == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "section not found"})
		}
		return c.JSON(versions)
	}
}

// VersionsHandler lists the versions of one source.
func VersionsHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		versions, err := archive.ListVersions(c.UserContext(), c.Params("id"))
		if err != nil {
			return errorResponse(c, err)
		}
		if versions == nil {
			versions = []model.Version{}
		}
		return c.JSON(versions)
	}
}
