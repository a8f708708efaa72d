package org

import (
	"github.com/gofiber/fiber/v2"

	"lexform-backend/internal/auth"
	"lexform-backend/internal/engine"
)

type Handler struct {
	service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{service: svc}
}

func RegisterOrgRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	create := append(append([]fiber.Handler{}, middleware...), h.Create)
	app.Post("/api/orgs", create...)

	g := app.Group("/api/orgs/:org", middleware...)
	g.Get("/", h.Get)
	g.Get("/members", h.ListMembers)
	g.Put("/members/:user", h.PutMember)
	g.Delete("/members/:user", h.RemoveMember)
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateInput
	if err := c.BodyParser(&in); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	o, err := h.service.Create(c.UserContext(), auth.GetUser(c), in)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": o})
}

func (h *Handler) Get(c *fiber.Ctx) error {
	o, err := h.service.Get(c.UserContext(), auth.GetUser(c), c.Params("org"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": o})
}

func (h *Handler) ListMembers(c *fiber.Ctx) error {
	members, err := h.service.ListMembers(c.UserContext(), auth.GetUser(c), c.Params("org"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": members})
}

// PutMember handles PUT /api/orgs/:org/members/:user with {"role": ...}.
func (h *Handler) PutMember(c *fiber.Ctx) error {
	var body struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	m, err := h.service.AddMember(c.UserContext(), auth.GetUser(c), c.Params("org"), c.Params("user"), body.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": m})
}

func (h *Handler) RemoveMember(c *fiber.Ctx) error {
	if err := h.service.RemoveMember(c.UserContext(), auth.GetUser(c), c.Params("org"), c.Params("user")); err != nil {
		return err
	}
	return c.SendStatus(204)
}
