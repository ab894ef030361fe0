package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"servicenest/internal/auth"
	"servicenest/internal/config"
	"servicenest/internal/models"
)

const (
	// Заголовки для локальной разработки, когда JWT отключен
	headerActorRole = "X-Actor-Role"
	headerActorID   = "X-Actor-ID"

	clientKeyUnknown = "unknown"
)

type ctxKey int

const (
	actorCtxKey ctxKey = iota
	requestIDCtxKey
)

var errMissingActor = errors.New("missing actor headers")

// HTTPAuth resolves the calling actor and applies per-actor rate limiting.
type HTTPAuth struct {
	cfg     config.APIConfig
	tokens  *auth.Tokens
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig, tokens *auth.Tokens) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, tokens: tokens, limiter: newRateLimiter(cfg.RateLimit)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.resolveActor(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		if !a.limiter.allow(clientKey(r, actor)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

func (a *HTTPAuth) resolveActor(r *http.Request) (models.Actor, error) {
	if a.cfg.Auth.Enabled && a.tokens != nil {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok {
			return models.Actor{}, auth.ErrMissingToken
		}
		return a.tokens.Verify(strings.TrimSpace(token))
	}

	actor := models.Actor{
		Role: models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(headerActorRole)))),
		ID:   strings.TrimSpace(r.Header.Get(headerActorID)),
	}
	if actor.Role == "" && actor.ID == "" {
		return models.Actor{}, errMissingActor
	}
	if err := actor.Validate(); err != nil {
		return models.Actor{}, err
	}
	return actor, nil
}

func clientKey(r *http.Request, actor models.Actor) string {
	if actor.ID != "" {
		return actor.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func withActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext returns the actor resolved by HTTPAuth.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey).(models.Actor)
	return actor, ok
}
