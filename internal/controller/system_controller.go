package controller

import (
	"strconv"

	"literas-be/internal/pkg/logger"
	"literas-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

// ISystemController serves liveness and the operator log viewer.
type ISystemController interface {
	RegisterRoutes(app fiber.Router, api fiber.Router)
	Health(ctx *fiber.Ctx) error
	GetLogs(ctx *fiber.Ctx) error
	GetLogDetail(ctx *fiber.Ctx) error
}

type systemController struct {
	logs   logger.LogReader
	secret string
}

func NewSystemController(logs logger.LogReader, jwtSecret string) ISystemController {
	return &systemController{logs: logs, secret: jwtSecret}
}

func (c *systemController) RegisterRoutes(app fiber.Router, api fiber.Router) {
	app.Get("/health", c.Health)

	h := api.Group("/admin")
	h.Use(serverutils.JwtMiddleware(c.secret))
	h.Get("/logs", c.GetLogs)
	h.Get("/logs/:id", c.GetLogDetail)
}

func (c *systemController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("ok", fiber.Map{"status": "up"}))
}

func (c *systemController) GetLogs(ctx *fiber.Ctx) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))
	level := ctx.Query("level", "")
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}

	logs, err := c.logs.GetLogs(level, limit, (page-1)*limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(serverutils.ErrorResponse(500, err.Error()))
	}
	return ctx.JSON(serverutils.SuccessResponse("System logs", logs))
}

func (c *systemController) GetLogDetail(ctx *fiber.Ctx) error {
	l, err := c.logs.GetLogById(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(404, "Log not found"))
	}
	return ctx.JSON(serverutils.SuccessResponse("Log detail", l))
}
