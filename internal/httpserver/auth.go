package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "review.principal"

const RoleCoordinator = "coordinator"

// Principal is the authenticated caller extracted from the bearer token.
type Principal struct {
	Subject string
	Roles   []string
}

func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func principalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(ctxKeyPrincipal).(*Principal); ok {
		return p
	}
	return nil
}

// authenticate validates the HS256 bearer token and stores the principal in
// the request context. When the debug token is enabled and matches, the
// request is treated as a coordinator (dev only; Load refuses this in
// production).
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AllowDebugToken {
			if token := r.Header.Get("X-Debug-Token"); token != "" && token == s.cfg.DebugToken {
				ctx := context.WithValue(r.Context(), ctxKeyPrincipal, &Principal{Subject: "debug", Roles: []string{RoleCoordinator}})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			respondError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		principal, err := s.verifyToken(strings.TrimSpace(authz[7:]))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyPrincipal, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) verifyToken(tokenStr string) (*Principal, error) {
	if s.cfg.JWTSecret == "" {
		return nil, errors.New("no jwt secret configured")
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token parse error: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	principal := &Principal{}
	if sub, err := claims.GetSubject(); err == nil {
		principal.Subject = sub
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if role, ok := r.(string); ok {
				principal.Roles = append(principal.Roles, role)
			}
		}
	}
	return principal, nil
}

// requireCoordinator guards distribution, returns, deletes, and archiving.
func (s *Server) requireCoordinator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := principalFromContext(r.Context())
		if principal == nil || !principal.HasRole(RoleCoordinator) {
			respondError(w, http.StatusForbidden, "coordinator role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
