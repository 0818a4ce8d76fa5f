package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/molimor/molimor-backend/api/responses"
	pkgAuth "github.com/molimor/molimor-backend/pkg/auth"
	"github.com/molimor/molimor-backend/pkg/config"
	pkgerrors "github.com/molimor/molimor-backend/pkg/errors"
	"github.com/molimor/molimor-backend/pkg/logger"
)

// Auth requires a valid access token and stores the caller Identity.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: claims.UserID, Role: claims.Role})
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if strings.EqualFold(header, "bearer") {
		return "", false
	}
	if scheme, rest, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "bearer") {
		header = strings.TrimSpace(rest)
	}
	if header == "" || strings.ContainsAny(header, " \t") {
		return "", false
	}
	return header, true
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="molimor"`)
	responses.WriteError(r.Context(), logg, w, err)
}
