package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fluentvoice/server/internal/auth"
)

func TestAnonymousAuthIssuesValidToken(t *testing.T) {
	e := echo.New()
	issuer := auth.NewTokenIssuer("test-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/anonymous",
		strings.NewReader(`{"anonymousId":"anon-42"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := anonymousAuth(c, issuer, zap.NewNop()); err != nil {
		t.Fatalf("anonymousAuth: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp AnonymousAuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != "anon-42" {
		t.Errorf("UserID = %q, want %q", resp.UserID, "anon-42")
	}

	claims, err := issuer.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.UserID != "anon-42" {
		t.Errorf("token UserID = %q, want %q", claims.UserID, "anon-42")
	}
}

func TestAnonymousAuthAssignsIDWhenMissing(t *testing.T) {
	e := echo.New()
	issuer := auth.NewTokenIssuer("test-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/anonymous",
		strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := anonymousAuth(c, issuer, zap.NewNop()); err != nil {
		t.Fatalf("anonymousAuth: %v", err)
	}

	var resp AnonymousAuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID == "" {
		t.Error("expected a generated user ID")
	}
}

func TestWebsocketRejectsMissingToken(t *testing.T) {
	e := echo.New()
	issuer := auth.NewTokenIssuer("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := websocketWithAuth(nil, c, issuer, zap.NewNop()); err != nil {
		t.Fatalf("websocketWithAuth: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWebsocketRejectsInvalidToken(t *testing.T) {
	e := echo.New()
	issuer := auth.NewTokenIssuer("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/ws?token=bogus", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := websocketWithAuth(nil, c, issuer, zap.NewNop()); err != nil {
		t.Fatalf("websocketWithAuth: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
