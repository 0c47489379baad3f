package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func TestVerify_DevToken(t *testing.T) {
	v := NewVerifier(Config{DevMode: true})
	info, err := v.Verify(context.Background(), "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Actor != "Dr. Demo" {
		t.Errorf("expected demo actor, got %s", info.Actor)
	}
	if !info.Active {
		t.Error("expected dev token to be active")
	}
}

func TestVerify_DevTokenRejectedInProduction(t *testing.T) {
	v := NewVerifier(Config{DevMode: false})
	if _, err := v.Verify(context.Background(), "test"); err == nil {
		t.Error("expected error when dev mode is off and nothing else is configured")
	}
}

func TestVerify_EmptyToken(t *testing.T) {
	v := NewVerifier(Config{DevMode: true})
	if _, err := v.Verify(context.Background(), ""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestVerify_LocalJWT(t *testing.T) {
	secret := "dev-secret"
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "abha:practitioner:42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Actor: "Dr. Vaidya",
		Roles: []string{"practitioner"},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	v := NewVerifier(Config{DevSecret: secret})
	info, err := v.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Actor != "Dr. Vaidya" {
		t.Errorf("expected actor from claims, got %s", info.Actor)
	}
	if info.Sub != "abha:practitioner:42" {
		t.Errorf("expected subject from claims, got %s", info.Sub)
	}
}

func TestVerify_Introspection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"active":true,"sub":"abha:patient:99","actor":"Dr. Remote","roles":["practitioner"]}`))
	}))
	defer srv.Close()

	v := NewVerifier(Config{IntrospectionURL: srv.URL})
	info, err := v.Verify(context.Background(), "opaque-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Actor != "Dr. Remote" {
		t.Errorf("expected remote actor, got %s", info.Actor)
	}
	if info.Source != "abha_introspection" {
		t.Errorf("expected introspection source, got %s", info.Source)
	}
}

func TestVerify_IntrospectionInactive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"active":false}`))
	}))
	defer srv.Close()

	v := NewVerifier(Config{IntrospectionURL: srv.URL})
	if _, err := v.Verify(context.Background(), "revoked"); err == nil {
		t.Error("expected error for inactive token")
	}
}

func TestMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Middleware(NewVerifier(Config{DevMode: true}))(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestMiddleware_SetsActorOnContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer test")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var actor string
	h := Middleware(NewVerifier(Config{DevMode: true}))(func(c echo.Context) error {
		actor = ActorFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor != "Dr. Demo" {
		t.Errorf("expected actor on context, got %s", actor)
	}
}

func TestActorFromContext_Unknown(t *testing.T) {
	if actor := ActorFromContext(context.Background()); actor != "unknown" {
		t.Errorf("expected unknown, got %s", actor)
	}
}

func TestHasRole(t *testing.T) {
	ctx := context.WithValue(context.Background(), RolesKey, []string{"practitioner"})
	if !HasRole(ctx, "admin", "practitioner") {
		t.Error("expected role match")
	}
	if HasRole(ctx, "admin") {
		t.Error("expected no match for admin")
	}
}
