package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/p2p_docs/internal/rest-service/auth"
	"github.com/konorlevich/p2p_docs/internal/rest-service/database"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*database.User, error)
}

type userKey struct{}

// CheckAuth lets the request through only with a valid bearer token and puts
// the token's user into the request context.
func CheckAuth(a Authenticator, l *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				unauthorized(rw, "Not authenticated")
				return
			}
			user, err := a.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidToken) {
					unauthorized(rw, "Invalid token")
					return
				}
				l.WithField("client", r.RemoteAddr).WithError(err).Error("can't authenticate request")
				writeDetail(rw, http.StatusInternalServerError, "something went wrong, please try later")
				return
			}
			next.ServeHTTP(rw, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func WithUser(ctx context.Context, user *database.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) (*database.User, bool) {
	user, ok := ctx.Value(userKey{}).(*database.User)
	return user, ok && user != nil
}

func unauthorized(rw http.ResponseWriter, detail string) {
	rw.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(rw, http.StatusUnauthorized, detail)
}

func writeDetail(rw http.ResponseWriter, status int, detail string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(map[string]string{"detail": detail})
}
