// Package gateway authenticates inbound HTTP requests and runs the wrapped
// handler inside a request-scoped credential binding.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/logging"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/identity"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/reqctx"
	"github.com/google/uuid"
)

type Resolver interface {
	Resolve(ctx context.Context, token string) (*identity.Identity, error)
}

type Gateway struct {
	resolver    Resolver
	manager     *reqctx.Manager
	staticToken string
	logger      logging.Logger
}

// New returns a Gateway. staticToken, when non-empty, is used for requests
// that carry no Authorization header at all.
func New(resolver Resolver, manager *reqctx.Manager, staticToken string, logger logging.Logger) *Gateway {
	return &Gateway{
		resolver:    resolver,
		manager:     manager,
		staticToken: staticToken,
		logger:      logger.With("module", "gateway"),
	}
}

// Middleware rejects unauthenticated requests with a uniform 401 and runs
// next with the caller's handles bound to the request context.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// Bindings are keyed by a server-generated id; a client-supplied id
		// is only carried along for log correlation.
		requestID := uuid.NewString()
		w.Header().Set(common.RequestIDHeaderName, requestID)
		log := g.logger.With("request_id", requestID)
		if clientID := r.Header.Get(common.RequestIDHeaderName); clientID != "" {
			log = log.With("client_request_id", clientID)
		}

		token, err := g.extractToken(r)
		if err != nil {
			g.reject(ctx, w, log, err)
			return
		}

		id, err := g.resolver.Resolve(ctx, token)
		if err != nil {
			g.reject(ctx, w, log, err)
			return
		}

		log = log.With("user_id", id.User.ID)
		ctx = logging.NewContext(ctx, log)

		_ = g.manager.Run(ctx, requestID, id.Handles, func(ctx context.Context) error {
			next.ServeHTTP(w, r.WithContext(ctx))
			return nil
		})

		log.Debug(ctx, "request completed", "path", r.URL.Path)
	})
}

// extractToken reads "Authorization: Bearer <token>". Without the header
// the static token is used if one is configured; a header in any other
// scheme is rejected outright.
func (g *Gateway) extractToken(r *http.Request) (string, error) {
	header := r.Header.Get(common.AuthorizationHeaderName)
	if header == "" {
		if g.staticToken != "" {
			return g.staticToken, nil
		}
		return "", common.ErrMissingToken
	}

	if len(header) < len(common.BearerPrefix) || !strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", common.ErrMissingToken
	}

	token := strings.TrimSpace(header[len(common.BearerPrefix):])
	if token == "" {
		return "", common.ErrMissingToken
	}
	return token, nil
}

func (g *Gateway) reject(ctx context.Context, w http.ResponseWriter, log logging.Logger, err error) {
	outcome := common.Classify(err)

	switch outcome {
	case common.OutcomeMissing, common.OutcomeExpired, common.OutcomeInvalid:
		log.Info(ctx, "authentication rejected", "outcome", outcome.String())
	case common.OutcomeNotFound:
		log.Warn(ctx, "authentication rejected", "outcome", outcome.String(), "error", err)
	case common.OutcomeUnavailable:
		log.Error(ctx, "authentication failed", "outcome", outcome.String(), "error", err)
	case common.OutcomeOK:
		log.Error(ctx, "reject called without error")
	}

	WriteUnauthorized(w)
}

// WriteUnauthorized writes the single 401 body clients ever see.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="gsheetsmcp"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}
