package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"lexform-backend/internal/engine"
	"lexform-backend/internal/metadata"
)

const secret = "test-secret"

type staticRoles map[string]string

func (r staticRoles) Role(_ context.Context, orgID, userID string) (string, error) {
	return r[orgID+"/"+userID], nil
}

func newApp(roles RoleResolver) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	echo := func(c *fiber.Ctx) error { return c.JSON(GetUser(c)) }
	mw := AuthMiddleware(secret, roles)
	app.Get("/me", mw, echo)
	app.Get("/orgs/:org/me", mw, echo)
	app.Get("/admin", mw, RequireAdmin(), echo)
	return app
}

func call(t *testing.T, app *fiber.App, path, token string, header map[string]string) (int, metadata.UserContext) {
	t.Helper()
	req, _ := http.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	body, _ := io.ReadAll(resp.Body)
	var u metadata.UserContext
	_ = json.Unmarshal(body, &u)
	return resp.StatusCode, u
}

func TestAuthMiddleware_Tokens(t *testing.T) {
	app := newApp(nil)

	if status, _ := call(t, app, "/me", "", nil); status != 401 {
		t.Fatalf("missing token: expected 401, got %d", status)
	}
	if status, _ := call(t, app, "/me", "garbage", nil); status != 401 {
		t.Fatalf("bad token: expected 401, got %d", status)
	}
	other, _ := GenerateAccessToken("alice", metadata.RoleEditor, "", "other-secret")
	if status, _ := call(t, app, "/me", other, nil); status != 401 {
		t.Fatalf("wrong secret: expected 401, got %d", status)
	}

	token, err := GenerateAccessToken("alice", metadata.RoleEditor, "", secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	status, u := call(t, app, "/me", token, nil)
	if status != 200 || u.ID != "alice" || u.Role != metadata.RoleEditor || u.OrgID != "" {
		t.Fatalf("unexpected user: %d %+v", status, u)
	}

	if status, _ := call(t, app, "/admin", token, nil); status != 403 {
		t.Fatalf("editor on admin route: expected 403, got %d", status)
	}
	adminToken, _ := GenerateAccessToken("root", metadata.RoleAdmin, "", secret)
	if status, _ := call(t, app, "/admin", adminToken, nil); status != 200 {
		t.Fatalf("admin route: expected 200, got %d", status)
	}
}

func TestAuthMiddleware_OrgResolution(t *testing.T) {
	roles := staticRoles{"acme/alice": metadata.OrgRoleAdmin, "globex/alice": metadata.OrgRoleMember}
	app := newApp(roles)
	token, _ := GenerateAccessToken("alice", "", "globex", secret)

	_, u := call(t, app, "/me", token, nil)
	if u.Role != metadata.RoleMember || u.OrgID != "globex" || u.OrgRole != metadata.OrgRoleMember {
		t.Fatalf("token org should apply: %+v", u)
	}
	_, u = call(t, app, "/me", token, map[string]string{OrgHeader: "acme"})
	if u.OrgID != "acme" || u.OrgRole != metadata.OrgRoleAdmin {
		t.Fatalf("header org should win over the token: %+v", u)
	}
	_, u = call(t, app, "/orgs/acme/me", token, map[string]string{OrgHeader: "globex"})
	if u.OrgID != "acme" || u.OrgRole != metadata.OrgRoleAdmin {
		t.Fatalf("route org should win over the header: %+v", u)
	}
	_, u = call(t, app, "/orgs/initech/me", token, nil)
	if u.OrgID != "initech" || u.OrgRole != "" {
		t.Fatalf("non-members get no org role: %+v", u)
	}
}
