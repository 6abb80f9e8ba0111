package handler

import (
	"log/slog"
	"net/http"

	"github.com/pavelanni/eduquest/internal/exam"
	"github.com/pavelanni/eduquest/internal/model"
)

const roleCookieName = "role"

// roleMiddleware resolves the acting role for display purposes. It is taken
// from the role query parameter, then the role cookie; a role chosen through
// the query is remembered in the cookie. Nothing is authorized by it.
func roleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := model.UserRoleStudent
		if q := r.URL.Query().Get("role"); q != "" {
			role = model.UserRole(q)
			if _, ok := model.CapabilitiesFor(role); !ok {
				writeError(w, &exam.ValidationError{Field: "role", Message: "is not a known role", Value: q})
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     roleCookieName,
				Value:    string(role),
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		} else if cookie, err := r.Cookie(roleCookieName); err == nil && cookie.Value != "" {
			if _, ok := model.CapabilitiesFor(model.UserRole(cookie.Value)); ok {
				role = model.UserRole(cookie.Value)
			} else {
				slog.Debug("ignoring unknown role cookie", "role", cookie.Value)
			}
		}
		next.ServeHTTP(w, r.WithContext(model.ContextWithRole(r.Context(), role)))
	})
}
