package utils

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page/per_page query params, clamping to page >= 1 and
// 1 <= per_page <= 100. Unparseable values fall back to the defaults.
func ParsePagination(c *fiber.Ctx) PaginationParams {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	perPage := c.QueryInt("per_page", 20)
	if perPage < 1 {
		perPage = 1
	}
	if perPage > 100 {
		perPage = 100
	}

	return PaginationParams{Page: page, PerPage: perPage}
}

func ApplyPagination(query *gorm.DB, p PaginationParams) *gorm.DB {
	return query.Offset((p.Page - 1) * p.PerPage).Limit(p.PerPage)
}
