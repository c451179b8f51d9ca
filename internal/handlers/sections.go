package handlers

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/service"
	"github.com/jjenkins/lawarchive/internal/templates"
)

// sectionKey reads :title, :section and ?subsection.
func sectionKey(c *fiber.Ctx) (model.Key, error) {
	title, err := strconv.Atoi(c.Params("title"))
	if err != nil || title <= 0 {
		return model.Key{}, fmt.Errorf("%w: invalid title number %q", model.ErrInvalidInput, c.Params("title"))
	}
	section, err := url.PathUnescape(c.Params("section"))
	if err != nil || section == "" {
		return model.Key{}, fmt.Errorf("%w: invalid section %q", model.ErrInvalidInput, c.Params("section"))
	}
	return model.Key{
		Title:      title,
		Section:    section,
		Subsection: model.NormalizeSubsection(c.Query("subsection")),
	}, nil
}

// SectionHandler returns one provision as JSON.
func SectionHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, err := sectionKey(c)
		if err != nil {
			return errorResponse(c, err)
		}
		when, err := model.ParseAsOf(c.Query("as_of"))
		if err != nil {
			return errorResponse(c, err)
		}

		section, err := archive.GetSection(c.UserContext(), key, when)
		if err != nil {
			return errorResponse(c, err)
		}
		if section == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "section not found"})
		}
		return c.JSON(section)
	}
}

func ReferencesToHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, err := sectionKey(c)
		if err != nil {
			return errorResponse(c, err)
		}
		keys, err := archive.ReferencesTo(c.UserContext(), key.Title, key.Section)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(nonNil(keys))
	}
}

func ReferencedByHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, err := sectionKey(c)
		if err != nil {
			return errorResponse(c, err)
		}
		keys, err := archive.ReferencedBy(c.UserContext(), key.Title, key.Section)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(nonNil(keys))
	}
}

func nonNil(keys []model.Key) []model.Key {
	if keys == nil {
		return []model.Key{}
	}
	return keys
}

// SectionPageHandler renders a provision with its citations and versions.
func SectionPageHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		key, err := sectionKey(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		when, err := model.ParseAsOf(c.Query("as_of"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}

		section, err := archive.GetSection(ctx, key, when)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading section")
		}
		if section == nil {
			return render(c, templates.NotFound(key.String()+" is not in the archive."), templ.WithStatus(fiber.StatusNotFound))
		}

		page := templates.SectionPage{Section: section, AsOf: c.Query("as_of")}
		if page.ReferencesTo, err = archive.ReferencesTo(ctx, key.Title, key.Section); err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading citations")
		}
		if page.ReferencedBy, err = archive.ReferencedBy(ctx, key.Title, key.Section); err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading citations")
		}
		if page.History, err = archive.SectionHistory(ctx, key); err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error loading history")
		}

		return render(c, templates.Section(page))
	}
}
