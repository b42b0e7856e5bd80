//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"teller/internal/auth/models"
	rlModels "teller/internal/ratelimit/models"
	dErrors "teller/pkg/domain-errors"
	"teller/pkg/platform/httputil"
	authmw "teller/pkg/platform/middleware/auth"
	"teller/pkg/requestcontext"
)

// Service defines the auth operations served over HTTP.
type Service interface {
	Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error)
	Token(ctx context.Context, req *models.TokenRequest) (*models.AuthResponse, error)
	Refresh(ctx context.Context, req *models.RefreshRequest) (*models.AuthResponse, error)
	Logout(ctx context.Context, req *models.LogoutRequest) *models.MessageResponse
	Revoke(ctx context.Context, req *models.RevokeRequest) (*models.MessageResponse, error)
	UserInfo(ctx context.Context, userID string) (*models.User, error)
	Session(ctx context.Context, userID string, expiresAt time.Time) (*models.SessionResponse, error)
}

// RateLimiter gates an endpoint class.
type RateLimiter interface {
	RateLimit(class rlModels.EndpointClass) func(http.Handler) http.Handler
}

// Handler serves the /api/auth endpoints.
type Handler struct {
	auth          Service
	authenticator *authmw.Authenticator
	limiter       RateLimiter
	logger        *slog.Logger
}

// New creates a Handler. A nil limiter leaves the endpoints unthrottled.
func New(auth Service, authenticator *authmw.Authenticator, limiter RateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:          auth,
		authenticator: authenticator,
		limiter:       limiter,
		logger:        logger,
	}
}

// Register mounts the auth routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Handle("/login", method(http.MethodPost, h.limit(rlModels.ClassLogin, http.HandlerFunc(h.handleLogin))))
		r.Handle("/token", method(http.MethodPost, h.limit(rlModels.ClassToken, http.HandlerFunc(h.handleToken))))
		r.Handle("/refresh", method(http.MethodPost, h.limit(rlModels.ClassRefresh, http.HandlerFunc(h.handleRefresh))))
		r.Handle("/logout", method(http.MethodPost, h.authenticator.OptionalAuth(http.HandlerFunc(h.handleLogout))))
		r.Handle("/revoke", method(http.MethodPost, http.HandlerFunc(h.handleRevoke)))
		r.Handle("/userinfo", method(http.MethodGet, h.authenticator.RequireAuth(http.HandlerFunc(h.handleUserInfo))))
		r.Handle("/session", method(http.MethodGet, h.authenticator.OptionalAuth(http.HandlerFunc(h.handleSession))))
	})
}

func (h *Handler) limit(class rlModels.EndpointClass, next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return h.limiter.RateLimit(class)(next)
}

// method rejects every other verb with 405 before any rate limiting or auth runs.
func method(allowed string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != allowed {
			w.Header().Set("Allow", allowed)
			httputil.WriteOAuthError(w, http.StatusMethodNotAllowed, dErrors.CodeMethodNotAllowed,
				fmt.Sprintf("Only %s method is allowed", allowed))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "invalid login request", err)
		return
	}

	res, err := h.auth.Login(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, "login failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.TokenRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "invalid token request", err)
		return
	}
	if req.GrantType == "" {
		h.writeError(ctx, w, "invalid token request", dErrors.New(dErrors.CodeInvalidRequest, "grant_type is required"))
		return
	}

	res, err := h.auth.Token(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, "token request failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RefreshRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "invalid refresh request", err)
		return
	}

	res, err := h.auth.Refresh(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, "refresh failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// handleLogout accepts an empty body; the client clears its state regardless.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.LogoutRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.logger.DebugContext(ctx, "ignoring unreadable logout body", "error", err)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, h.auth.Logout(ctx, &req))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.RevokeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "invalid revoke request", err)
		return
	}

	res, err := h.auth.Revoke(ctx, &req)
	if err != nil {
		h.writeError(ctx, w, "revoke failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.auth.UserInfo(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.writeError(ctx, w, "userinfo failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		userID    string
		expiresAt time.Time
	)
	if claims := authmw.GetClaims(ctx); claims != nil {
		userID = claims.UserID
		expiresAt = claims.ExpiresAt
	}

	res, err := h.auth.Session(ctx, userID, expiresAt)
	if err != nil {
		h.writeError(ctx, w, "session lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	} else {
		h.logger.WarnContext(ctx, msg, "error", err, "request_id", requestcontext.RequestID(ctx))
	}
	httputil.WriteError(w, err)
}
