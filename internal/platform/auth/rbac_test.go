package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func roleContext(roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithActor(context.Background(), "someone", roles...))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := roleContext(RoleSurgeon)
	err := RequireRole(RoleSurgeon, RoleCRNA)(okHandler)(c)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := roleContext(RoleAdmin)
	if err := RequireRole(RoleAnalysis)(okHandler)(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	c, _ := roleContext(RoleCoordinator)
	err := RequireRole(RoleSurgeon)(okHandler)(c)
	if err == nil {
		t.Fatal("expected error")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	c, _ := roleContext()
	if err := RequireRole(RoleStaff)(okHandler)(c); err == nil {
		t.Error("expected error for actor without roles")
	}
}

func TestAuthSkipper(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())
	c.SetPath("/health")
	if !AuthSkipper(c) {
		t.Error("expected /health to skip auth")
	}
	c.SetPath("/api/v1/patients")
	if AuthSkipper(c) {
		t.Error("expected patient routes to require auth")
	}
	if IsPublicPath("/api/v1/dashboard") {
		t.Error("dashboard must not be public")
	}
}
