package controller

import (
	"errors"

	"literas-be/internal/dto"
	"literas-be/internal/pkg/serverutils"
	"literas-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IResearchController interface {
	RegisterRoutes(r fiber.Router)
	Start(ctx *fiber.Ctx) error
	GetAll(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Turns(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	Search(ctx *fiber.Ctx) error
}

type researchController struct {
	service service.IResearchService
	secret  string
}

func NewResearchController(service service.IResearchService, jwtSecret string) IResearchController {
	return &researchController{service: service, secret: jwtSecret}
}

func (c *researchController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/research")
	h.Use(serverutils.JwtMiddleware(c.secret))
	h.Post("/sessions", c.Start)
	h.Get("/sessions", c.GetAll)
	h.Get("/sessions/:id", c.Show)
	h.Get("/sessions/:id/turns", c.Turns)
	h.Delete("/sessions/:id", c.Cancel)
	h.Post("/search", c.Search)
}

func (c *researchController) Start(ctx *fiber.Ctx) error {
	var req dto.StartResearchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Start(ctx.UserContext(), userID(ctx), req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Research session started", res))
}

func (c *researchController) GetAll(ctx *fiber.Ctx) error {
	req := dto.ListResearchRequest{Page: 1, Limit: 20}
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid query")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.List(ctx.UserContext(), req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Research sessions", res))
}

func (c *researchController) Show(ctx *fiber.Ctx) error {
	id, err := sessionID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Get(ctx.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Research session", res))
}

func (c *researchController) Turns(ctx *fiber.Ctx) error {
	id, err := sessionID(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Turns(ctx.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Research transcript", res))
}

func (c *researchController) Cancel(ctx *fiber.Ctx) error {
	id, err := sessionID(ctx)
	if err != nil {
		return err
	}

	if err := c.service.Cancel(ctx.UserContext(), id); err != nil {
		return mapError(err)
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Cancellation requested", nil))
}

func (c *researchController) Search(ctx *fiber.Ctx) error {
	var req dto.SearchRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Search(ctx.UserContext(), req)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return ctx.JSON(serverutils.SuccessResponse("Search results", res))
}

func sessionID(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid session id")
	}
	return id, nil
}

// userID is nil when authentication is disabled.
func userID(ctx *fiber.Ctx) *uuid.UUID {
	raw, ok := ctx.Locals("user_id").(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSessionNotRunning):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return err
}
