package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"lexform-backend/internal/auth"
	"lexform-backend/internal/engine"
	"lexform-backend/internal/metadata"
)

const testSecret = "admin-test-secret"

func adminApp(t *testing.T) *fiber.App {
	t.Helper()
	h := newHarness(t)
	app := fiber.New(fiber.Config{ErrorHandler: engine.ErrorHandler})
	RegisterAdminRoutes(app, NewHandler(h.svc), auth.AuthMiddleware(testSecret, nil))
	return app
}

func send(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func dataID(t *testing.T, body map[string]any) string {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", body)
	}
	return data["id"].(string)
}

func TestHandler_TemplateLifecycle(t *testing.T) {
	app := adminApp(t)
	token, _ := auth.GenerateAccessToken("ed", metadata.RoleEditor, "", testSecret)

	status, body := send(t, app, "POST", "/api/admin/templates", token, map[string]any{"slug": "nda", "title": "NDA"})
	if status != 201 {
		t.Fatalf("create template: %d %v", status, body)
	}
	tmplID := dataID(t, body)

	status, body = send(t, app, "POST", "/api/admin/templates/"+tmplID+"/screens", token, map[string]any{"title": "Parties"})
	if status != 201 {
		t.Fatalf("create screen: %d %v", status, body)
	}
	screenID := dataID(t, body)

	field := map[string]any{"name": "email", "label": "Email", "type": "email", "required": true}
	status, body = send(t, app, "POST", "/api/admin/screens/"+screenID+"/fields", token, field)
	if status != 201 {
		t.Fatalf("create field: %d %v", status, body)
	}
	fieldID := dataID(t, body)

	status, body = send(t, app, "POST", "/api/admin/screens/"+screenID+"/fields", token,
		map[string]any{"name": "email", "label": "Email Address", "type": "text"})
	if status != 409 || body["error"].(map[string]any)["code"] != "DUPLICATE_NAME" {
		t.Fatalf("duplicate field: %d %v", status, body)
	}

	status, body = send(t, app, "PUT", "/api/admin/screens/"+screenID+"/fields/order", token, map[string]any{})
	if status != 422 {
		t.Fatalf("reorder without ids: %d %v", status, body)
	}
	status, _ = send(t, app, "PUT", "/api/admin/screens/"+screenID+"/fields/order", token, map[string]any{"ids": []string{fieldID}})
	if status != 200 {
		t.Fatalf("reorder: %d", status)
	}

	status, body = send(t, app, "GET", "/api/admin/templates/"+tmplID, token, nil)
	if status != 200 {
		t.Fatalf("get template: %d %v", status, body)
	}
	screens := body["data"].(map[string]any)["screens"].([]any)
	if len(screens) != 1 || len(screens[0].(map[string]any)["fields"].([]any)) != 1 {
		t.Fatalf("unexpected template tree: %v", body)
	}

	status, body = send(t, app, "POST", "/api/admin/templates/"+tmplID+"/preview-token", token, nil)
	if status != 201 || body["data"].(map[string]any)["preview_token"] == "" {
		t.Fatalf("preview token: %d %v", status, body)
	}

	status, _ = send(t, app, "DELETE", "/api/admin/fields/"+fieldID, token, nil)
	if status != 200 {
		t.Fatalf("delete field: %d", status)
	}
	status, _ = send(t, app, "DELETE", "/api/admin/fields/"+fieldID, token, nil)
	if status != 404 {
		t.Fatalf("delete missing field: expected 404, got %d", status)
	}
}

func TestHandler_Forbidden(t *testing.T) {
	app := adminApp(t)
	token, _ := auth.GenerateAccessToken("mem", metadata.RoleMember, "", testSecret)

	status, body := send(t, app, "POST", "/api/admin/templates", token, map[string]any{"slug": "nda", "title": "NDA"})
	if status != 403 || body["error"].(map[string]any)["code"] != "FORBIDDEN" {
		t.Fatalf("expected 403 FORBIDDEN, got %d %v", status, body)
	}
	status, _ = send(t, app, "POST", "/api/orgs/acme/templates", token, map[string]any{"slug": "nda", "title": "NDA"})
	if status != 403 {
		t.Fatalf("org route without membership: expected 403, got %d", status)
	}

	status, body = send(t, app, "GET", "/api/templates", token, nil)
	if status != 200 || len(body["data"].([]any)) != 0 {
		t.Fatalf("catalog: %d %v", status, body)
	}
}
