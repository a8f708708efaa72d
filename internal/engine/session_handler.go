package engine

import (
	"github.com/gofiber/fiber/v2"

	"lexform-backend/internal/metadata"
)

// SessionHandler exposes the form runtime over HTTP.
type SessionHandler struct {
	manager *SessionManager
}

func NewSessionHandler(m *SessionManager) *SessionHandler {
	return &SessionHandler{manager: m}
}

// Start handles POST /api/sessions
func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var body struct {
		TemplateID   string `json:"template_id"`
		PreviewToken string `json:"preview_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	if body.TemplateID == "" {
		return FieldValidationError("template_id", "required", "template_id is required")
	}
	v, err := h.manager.Start(c.UserContext(), getUser(c), body.TemplateID, body.PreviewToken)
	if err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": v})
}

// Get handles GET /api/sessions/:id
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	v, err := h.manager.Get(c.UserContext(), getUser(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": v})
}

// SetValues handles PUT /api/sessions/:id/values
func (h *SessionHandler) SetValues(c *fiber.Ctx) error {
	var body struct {
		Values   map[string]any `json:"values"`
		Validate bool           `json:"validate"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	v, err := h.manager.SetValues(c.UserContext(), getUser(c), c.Params("id"), body.Values, body.Validate)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": v})
}

// Validate handles POST /api/sessions/:id/validate with either a field
// name or a screen index.
func (h *SessionHandler) Validate(c *fiber.Ctx) error {
	var body struct {
		Field  string `json:"field"`
		Screen *int   `json:"screen"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	user, id := getUser(c), c.Params("id")

	var valid bool
	var v *SessionView
	var err error
	switch {
	case body.Field != "":
		valid, v, err = h.manager.ValidateField(c.UserContext(), user, id, body.Field)
	case body.Screen != nil:
		valid, v, err = h.manager.ValidateScreen(c.UserContext(), user, id, *body.Screen)
	default:
		return FieldValidationError("field", "required", "field or screen is required")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": v, "meta": fiber.Map{"valid": valid}})
}

// Next handles POST /api/sessions/:id/next
func (h *SessionHandler) Next(c *fiber.Ctx) error {
	return h.respondMove(h.manager.Next(c.UserContext(), getUser(c), c.Params("id")))(c)
}

// Previous handles POST /api/sessions/:id/previous
func (h *SessionHandler) Previous(c *fiber.Ctx) error {
	return h.respondMove(h.manager.Previous(c.UserContext(), getUser(c), c.Params("id")))(c)
}

// GoTo handles POST /api/sessions/:id/goto
func (h *SessionHandler) GoTo(c *fiber.Ctx) error {
	var body struct {
		Step *int `json:"step"`
	}
	if err := c.BodyParser(&body); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	if body.Step == nil {
		return FieldValidationError("step", "required", "step is required")
	}
	return h.respondMove(h.manager.GoTo(c.UserContext(), getUser(c), c.Params("id"), *body.Step))(c)
}

func (h *SessionHandler) respondMove(moved bool, v *SessionView, err error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": v, "meta": fiber.Map{"moved": moved}})
	}
}

// Enrich handles POST /api/sessions/:id/enrich
func (h *SessionHandler) Enrich(c *fiber.Ctx) error {
	var req EnrichRequest
	if err := c.BodyParser(&req); err != nil {
		return InvalidPayloadError("Invalid JSON body")
	}
	v, err := h.manager.Enrich(c.UserContext(), getUser(c), c.Params("id"), req)
	if err != nil {
		return err
	}
	return c.Status(202).JSON(fiber.Map{"data": v})
}

// Submit handles POST /api/sessions/:id/submit
func (h *SessionHandler) Submit(c *fiber.Ctx) error {
	v, sub, err := h.manager.Submit(c.UserContext(), getUser(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": v, "submission": sub})
}

func getUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}

// RegisterSessionRoutes mounts the runtime routes behind the given middleware.
func RegisterSessionRoutes(app *fiber.App, h *SessionHandler, middleware ...fiber.Handler) {
	s := app.Group("/api/sessions", middleware...)

	s.Post("/", h.Start)
	s.Get("/:id", h.Get)
	s.Put("/:id/values", h.SetValues)
	s.Post("/:id/validate", h.Validate)
	s.Post("/:id/next", h.Next)
	s.Post("/:id/previous", h.Previous)
	s.Post("/:id/goto", h.GoTo)
	s.Post("/:id/enrich", h.Enrich)
	s.Post("/:id/submit", h.Submit)
}
