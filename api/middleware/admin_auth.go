package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/digital-fulfillment/api/responses"
	pkgauth "github.com/angelmondragon/digital-fulfillment/pkg/auth"
	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
)

const (
	adminPasswordHeader = "X-Admin-Password"

	AdminMethodJWT      = "jwt"
	AdminMethodPassword = "password"
)

// AdminAuth accepts an admin JWT, or the admin password sent either in
// X-Admin-Password or as the bearer value.
func AdminAuth(cfg config.AdminConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !cfg.HasCredentials() && cfg.JWTSecret == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access is not configured"))
				return
			}

			method, err := authenticateAdmin(cfg, r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = withAdminMethod(ctx, method)
			if logg != nil {
				ctx = logg.WithField(ctx, "admin_auth", method)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticateAdmin(cfg config.AdminConfig, r *http.Request) (string, error) {
	if candidate := strings.TrimSpace(r.Header.Get(adminPasswordHeader)); candidate != "" {
		return checkAdminPassword(cfg, candidate)
	}

	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	if cfg.JWTSecret != "" {
		if _, err := pkgauth.ParseAdminToken(cfg, token); err == nil {
			return AdminMethodJWT, nil
		}
	}
	return checkAdminPassword(cfg, token)
}

func checkAdminPassword(cfg config.AdminConfig, candidate string) (string, error) {
	ok, err := pkgauth.CheckPassword(cfg, candidate)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify admin password")
	}
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}
	return AdminMethodPassword, nil
}

func bearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return ""
}
