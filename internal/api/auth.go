package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity resolves the calling patient from the Authorization header.
// Tokens are HMAC-signed with the patient's public id in the subject claim;
// issuance lives in the auth subsystem, this side only verifies.
func Identity(secret string) func(*http.Request) (string, bool) {
	return identityFrom(secret, headerToken)
}

// HandshakeIdentity additionally accepts a token query parameter. A browser
// websocket handshake cannot set headers, so this resolver is used only on
// the /ws route; everywhere else the token must not appear in the URL.
func HandshakeIdentity(secret string) func(*http.Request) (string, bool) {
	return identityFrom(secret, func(r *http.Request) string {
		if raw := headerToken(r); raw != "" {
			return raw
		}
		return r.URL.Query().Get("token")
	})
}

func identityFrom(secret string, tokenFrom func(*http.Request) string) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		raw := tokenFrom(r)
		if raw == "" {
			return "", false
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return "", false
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			return "", false
		}

		return sub, true
	}
}

func headerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// AuthMiddleware rejects requests whose caller cannot be resolved to a
// patient identity and stores the id in the request context otherwise.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	identity := Identity(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			patientID, ok := identity(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "a valid patient token is required")
				return
			}

			ctx := context.WithValue(r.Context(), patientIDKey, patientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
