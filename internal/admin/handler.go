package admin

import (
	"github.com/gofiber/fiber/v2"

	"lexform-backend/internal/auth"
	"lexform-backend/internal/engine"
)

type Handler struct {
	service *Service
	// scope resolves the organization a request acts in; "" is the
	// platform scope.
	scope func(c *fiber.Ctx) string
}

func NewHandler(svc *Service) *Handler {
	return &Handler{service: svc, scope: func(*fiber.Ctx) string { return "" }}
}

// forOrg returns a handler whose routes act inside the :org path parameter.
func (h *Handler) forOrg() *Handler {
	return &Handler{service: h.service, scope: func(c *fiber.Ctx) string { return c.Params("org") }}
}

// RegisterAdminRoutes mounts template administration twice: under
// /api/admin for public templates and under /api/orgs/:org for
// organization-owned ones. The public catalog lives under /api/templates.
func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	mountTemplateRoutes(app.Group("/api/admin", middleware...), h)
	mountTemplateRoutes(app.Group("/api/orgs/:org", middleware...), h.forOrg())

	catalog := app.Group("/api/templates", middleware...)
	catalog.Get("/", h.Catalog)
	catalog.Get("/:id", h.CatalogTemplate)
}

func mountTemplateRoutes(r fiber.Router, h *Handler) {
	r.Get("/templates", h.ListTemplates)
	r.Post("/templates", h.CreateTemplate)
	r.Get("/templates/:id", h.GetTemplate)
	r.Put("/templates/:id", h.UpdateTemplate)
	r.Delete("/templates/:id", h.DeleteTemplate)
	r.Post("/templates/:id/preview-token", h.IssuePreviewToken)
	r.Delete("/templates/:id/preview-token", h.RevokePreviewToken)

	r.Post("/templates/:id/screens", h.CreateScreen)
	r.Put("/templates/:id/screens/order", h.ReorderScreens)
	r.Put("/screens/:id", h.UpdateScreen)
	r.Delete("/screens/:id", h.DeleteScreen)

	r.Post("/screens/:id/fields", h.CreateField)
	r.Put("/screens/:id/fields/order", h.ReorderFields)
	r.Put("/fields/:id", h.UpdateField)
	r.Post("/fields/:id/move", h.MoveField)
	r.Delete("/fields/:id", h.DeleteField)
}

// --- Template Endpoints ---

func (h *Handler) ListTemplates(c *fiber.Ctx) error {
	list, err := h.service.ListTemplates(c.UserContext(), auth.GetUser(c), h.scope(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": list})
}

func (h *Handler) GetTemplate(c *fiber.Ctx) error {
	t, err := h.service.GetTemplate(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": t})
}

func (h *Handler) CreateTemplate(c *fiber.Ctx) error {
	var in TemplateInput
	if err := c.BodyParser(&in); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	t, err := h.service.CreateTemplate(c.UserContext(), auth.GetUser(c), h.scope(c), in)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": t})
}

func (h *Handler) UpdateTemplate(c *fiber.Ctx) error {
	var in TemplateInput
	if err := c.BodyParser(&in); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	t, err := h.service.UpdateTemplate(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": t})
}

func (h *Handler) DeleteTemplate(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.DeleteTemplate(c.UserContext(), auth.GetUser(c), h.scope(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

func (h *Handler) IssuePreviewToken(c *fiber.Ctx) error {
	token, err := h.service.IssuePreviewToken(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{"preview_token": token}})
}

func (h *Handler) RevokePreviewToken(c *fiber.Ctx) error {
	if err := h.service.RevokePreviewToken(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(204)
}

// --- Screen Endpoints ---

func (h *Handler) CreateScreen(c *fiber.Ctx) error {
	var in ScreenInput
	if err := c.BodyParser(&in); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	sc, err := h.service.CreateScreen(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": sc})
}

func (h *Handler) UpdateScreen(c *fiber.Ctx) error {
	var in ScreenInput
	if err := c.BodyParser(&in); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	sc, err := h.service.UpdateScreen(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sc})
}

func (h *Handler) DeleteScreen(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.DeleteScreen(c.UserContext(), auth.GetUser(c), h.scope(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

func (h *Handler) ReorderScreens(c *fiber.Ctx) error {
	ids, err := parseIDs(c)
	if err != nil {
		return err
	}
	if err := h.service.ReorderScreens(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"), ids); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ids": ids}})
}

// --- Field Endpoints ---

func (h *Handler) CreateField(c *fiber.Ctx) error {
	var in FieldInput
	if err := c.BodyParser(&in); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	f, err := h.service.CreateField(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": f})
}

func (h *Handler) UpdateField(c *fiber.Ctx) error {
	var in FieldInput
	if err := c.BodyParser(&in); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	f, err := h.service.UpdateField(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": f})
}

func (h *Handler) MoveField(c *fiber.Ctx) error {
	var body struct {
		ScreenID string `json:"screen_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid JSON body")
	}
	f, err := h.service.MoveField(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"), body.ScreenID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": f})
}

func (h *Handler) DeleteField(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.DeleteField(c.UserContext(), auth.GetUser(c), h.scope(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

func (h *Handler) ReorderFields(c *fiber.Ctx) error {
	ids, err := parseIDs(c)
	if err != nil {
		return err
	}
	if err := h.service.ReorderFields(c.UserContext(), auth.GetUser(c), h.scope(c), c.Params("id"), ids); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ids": ids}})
}

func parseIDs(c *fiber.Ctx) ([]string, error) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := c.BodyParser(&body); err != nil {
		return nil, engine.InvalidPayloadError("Invalid JSON body")
	}
	if body.IDs == nil {
		return nil, engine.FieldValidationError("ids", "required", "ids is required")
	}
	return body.IDs, nil
}

// --- Catalog Endpoints ---

func (h *Handler) Catalog(c *fiber.Ctx) error {
	list, err := h.service.Catalog(c.UserContext(), auth.GetUser(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": list})
}

// CatalogTemplate handles GET /api/templates/:id?preview_token=...
func (h *Handler) CatalogTemplate(c *fiber.Ctx) error {
	t, err := h.service.CatalogTemplate(c.UserContext(), auth.GetUser(c), c.Params("id"), c.Query("preview_token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": t})
}
