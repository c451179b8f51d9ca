package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
	"github.com/jjenkins/lawarchive/internal/service"
	"github.com/jjenkins/lawarchive/internal/templates"
)

func searchOptions(c *fiber.Ctx) (search.Options, error) {
	opts := search.Options{
		Title: c.QueryInt("title", 0),
		Limit: c.QueryInt("limit", search.DefaultLimit),
	}
	if opts.Title < 0 || opts.Limit < 0 {
		return opts, fmt.Errorf("%w: title and limit must not be negative", model.ErrInvalidInput)
	}
	return opts, nil
}

// SearchHandler runs a ranked full-text query.
func SearchHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		opts, err := searchOptions(c)
		if err != nil {
			return errorResponse(c, err)
		}
		results, err := archive.Search(c.UserContext(), c.Query("q"), opts)
		if err != nil {
			return errorResponse(c, err)
		}
		if results == nil {
			results = []model.SearchResult{}
		}
		return c.JSON(results)
	}
}

func SearchPageHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		opts, err := searchOptions(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		results, err := archive.Search(c.UserContext(), c.Query("q"), opts)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).SendString("Error running search")
		}
		return render(c, templates.SearchResults(c.Query("q"), results))
	}
}

// RebuildHandler recomputes the derived indexes.
func RebuildHandler(archive *service.Archive) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := archive.Rebuild(c.UserContext()); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
