package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	SubjectKey contextKey = "abha_subject"
	ActorKey   contextKey = "abha_actor"
	RolesKey   contextKey = "abha_roles"
)

// UserInfo is the identity resolved from an ABHA bearer token.
type UserInfo struct {
	Sub    string   `json:"sub"`
	Actor  string   `json:"actor"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	Scope  string   `json:"scope"`
	Active bool     `json:"active"`
	Source string   `json:"source"`
}

// Config controls how bearer tokens are verified.
type Config struct {
	// IntrospectionURL is the ABHA token introspection endpoint. When set,
	// tokens are verified remotely.
	IntrospectionURL string
	// DevSecret enables local HS256 JWT verification for development and
	// testing. Checked before introspection.
	DevSecret string
	// DevMode accepts the literal token "test" as a demo practitioner.
	DevMode bool
}

// Claims are the JWT claims accepted in dev-secret mode.
type Claims struct {
	jwt.RegisteredClaims
	Actor string   `json:"actor"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
}

// Verifier resolves bearer tokens to user identities.
type Verifier struct {
	cfg    Config
	client *http.Client
}

// NewVerifier creates a token verifier with a bounded HTTP client for the
// introspection path.
func NewVerifier(cfg Config) *Verifier {
	return &Verifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Verify resolves a raw bearer token. A "Bearer " prefix is tolerated.
func (v *Verifier) Verify(ctx context.Context, token string) (*UserInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("no token provided")
	}
	token = strings.TrimPrefix(token, "Bearer ")

	if v.cfg.DevMode && token == "test" {
		return &UserInfo{
			Sub:    "abha:example:123",
			Actor:  "Dr. Demo",
			Name:   "Demo User",
			Email:  "demo@example.com",
			Roles:  []string{"practitioner"},
			Active: true,
			Source: "development",
		}, nil
	}

	if v.cfg.DevSecret != "" {
		if info, err := v.verifyLocalJWT(token); err == nil {
			return info, nil
		}
	}

	if v.cfg.IntrospectionURL != "" {
		return v.introspect(ctx, token)
	}

	return nil, fmt.Errorf("token verification not configured")
}

func (v *Verifier) verifyLocalJWT(token string) (*UserInfo, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(v.cfg.DevSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	actor := claims.Actor
	if actor == "" {
		actor = claims.Name
	}
	if actor == "" {
		actor = claims.Subject
	}
	return &UserInfo{
		Sub:    claims.Subject,
		Actor:  actor,
		Name:   claims.Name,
		Roles:  claims.Roles,
		Active: true,
		Source: "dev_jwt",
	}, nil
}

func (v *Verifier) introspect(ctx context.Context, token string) (*UserInfo, error) {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.IntrospectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build introspection request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token verification service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token verification failed: %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode introspection response: %w", err)
	}
	if !info.Active {
		return nil, fmt.Errorf("token is not active")
	}
	info.Source = "abha_introspection"
	return &info, nil
}

// Middleware returns echo middleware that verifies the Authorization header
// and places the resolved identity on the request context.
func Middleware(v *Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			info, err := v.Verify(c.Request().Context(), parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, SubjectKey, info.Sub)
			ctx = context.WithValue(ctx, ActorKey, info.Actor)
			ctx = context.WithValue(ctx, RolesKey, info.Roles)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// ActorFromContext retrieves the acting identity, or "unknown" when the
// request was not authenticated (e.g. in tests that bypass the middleware).
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(ActorKey).(string)
	if actor == "" {
		return "unknown"
	}
	return actor
}

// SubjectFromContext retrieves the token subject from context.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(SubjectKey).(string)
	return sub
}

// RolesFromContext retrieves the caller's roles from context.
func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(RolesKey).([]string)
	return roles
}

// HasRole reports whether the context carries any of the given roles.
func HasRole(ctx context.Context, required ...string) bool {
	roles := RolesFromContext(ctx)
	for _, r := range roles {
		for _, want := range required {
			if r == want {
				return true
			}
		}
	}
	return false
}
