package auth

import (
	"context"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"lexform-backend/internal/engine"
	"lexform-backend/internal/metadata"
)

// OrgHeader selects the organization a request acts in when the route
// has no :org parameter.
const OrgHeader = "X-Org-ID"

// RoleResolver looks up a user's role inside an organization. An empty
// role means the user is not a member.
type RoleResolver interface {
	Role(ctx context.Context, orgID, userID string) (string, error)
}

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and sets the UserContext on the request. The acting organization comes
// from the :org route parameter, the X-Org-ID header or the token, in
// that order; its role is resolved through roles when non-nil.
func AuthMiddleware(secret string, roles RoleResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		user := &metadata.UserContext{ID: claims.Subject, Role: claims.Role}
		if user.Role == "" {
			user.Role = metadata.RoleMember
		}

		orgID := c.Params("org")
		if orgID == "" {
			orgID = c.Get(OrgHeader)
		}
		if orgID == "" {
			orgID = claims.OrgID
		}
		if orgID != "" {
			user.OrgID = orgID
			switch {
			case roles != nil:
				role, err := roles.Role(c.UserContext(), orgID, user.ID)
				if err != nil {
					log.Printf("ERROR: resolve membership %s/%s: %v", orgID, user.ID, err)
					return engine.NewAppError("INTERNAL_ERROR", 500, "Could not resolve organization membership")
				}
				user.OrgRole = role
			case orgID == claims.OrgID:
				user.OrgRole = claims.OrgRole
			}
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated user has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !user.IsAdmin() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *metadata.UserContext {
	user, _ := c.Locals("user").(*metadata.UserContext)
	return user
}
