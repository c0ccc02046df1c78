package httpd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/RubachokBoss/thesis-service/pkg/utils"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

type ctxKey int

const (
	actorKey ctxKey = iota
	loggerKey
)

// Claims are issued by the university identity provider. The subject is
// the student, supervisor or staff id.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Actor validates an HS256 token and returns the caller it identifies.
func (a *Authenticator) Actor(token string) (models.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return models.Actor{}, fmt.Errorf("invalid token: %w", err)
	}

	if claims.Subject == "" {
		return models.Actor{}, errors.New("token has no subject")
	}
	if !claims.Role.IsValid() {
		return models.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}

	return models.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// Sign issues a token for actor. Used by tooling and tests.
func (a *Authenticator) Sign(actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := utils.BearerToken(r)
		if !ok {
			utils.ErrorResponse(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}

		actor, err := a.Actor(token)
		if err != nil {
			log := loggerFrom(r.Context())
			log.Debug().Err(err).Msg("Rejected token")
			utils.ErrorResponse(w, http.StatusUnauthorized, "invalid token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func actorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

// RequestLogger logs every request with its chi request id and stores a
// request scoped logger in the context.
func RequestLogger(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			if reqID == "" {
				reqID = "unknown"
			}

			requestLog := log.With().Str("request_id", reqID).Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			r = r.WithContext(context.WithValue(r.Context(), loggerKey, requestLog))

			defer func() {
				event := requestLog.Info()
				if ww.Status() >= http.StatusInternalServerError {
					event = requestLog.Error()
				}
				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("query", r.URL.RawQuery).
					Str("ip", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}

func loggerFrom(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return l
	}
	return zerolog.Nop()
}
