// Package handler exposes registration and recovery checks over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"onboarding/internal/audit"
	"onboarding/internal/registration/classifier"
	"onboarding/internal/registration/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
	adminmw "onboarding/pkg/platform/middleware/admin"
	authmw "onboarding/pkg/platform/middleware/auth"
	request "onboarding/pkg/platform/middleware/request"
	"onboarding/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Registrar runs the registration saga. It never returns an error; failures
// are carried in the result.
type Registrar interface {
	Execute(ctx context.Context, req *models.RegistrationRequest) models.TransactionResult
}

type RecoveryChecker interface {
	Check(ctx context.Context, identityID id.IdentityID) (models.RecoveryStatus, error)
}

// AuditReader lists the audit trail recorded for an identity.
type AuditReader interface {
	List(ctx context.Context, identityID string) ([]audit.Event, error)
}

// TokenIssuer mints an access token for a freshly registered identity.
type TokenIssuer interface {
	GenerateAccessToken(identityID id.IdentityID, expiresIn time.Duration) (string, error)
}

type Handler struct {
	registrar  Registrar
	recovery   RecoveryChecker
	logger     *slog.Logger
	tokens     TokenIssuer
	tokenTTL   time.Duration
	validator  authmw.JWTValidator
	adminToken string
	audit      AuditReader
	limit      func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithTokenIssuer returns an access token alongside a successful registration.
func WithTokenIssuer(tokens TokenIssuer, ttl time.Duration) Option {
	return func(h *Handler) {
		h.tokens = tokens
		h.tokenTTL = ttl
	}
}

// WithJWTValidator enables the self-service recovery check.
func WithJWTValidator(v authmw.JWTValidator) Option {
	return func(h *Handler) {
		h.validator = v
	}
}

// WithAdminToken sets the token guarding the admin routes. Without one the
// admin routes reject every request.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// WithAuditReader exposes the per-identity audit trail on the admin routes.
func WithAuditReader(reader AuditReader) Option {
	return func(h *Handler) {
		h.audit = reader
	}
}

// WithRegistrationLimit wraps the registration route, typically with a
// per-client rate limiter.
func WithRegistrationLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.limit = mw
	}
}

func New(registrar Registrar, recovery RecoveryChecker, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{registrar: registrar, recovery: recovery, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register mounts the registration routes on r.
func (h *Handler) Register(r chi.Router) {
	if h.limit != nil {
		r.With(h.limit).Post("/v1/registrations", h.handleRegister)
	} else {
		r.Post("/v1/registrations", h.handleRegister)
	}
	if h.validator != nil {
		r.With(authmw.RequireAuth(h.validator, h.logger)).Get("/v1/me/recovery", h.handleSelfRecovery)
	}
	r.Route("/admin/identities/{id}", func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(h.adminToken, h.logger))
		r.Get("/recovery", h.handleAdminRecovery)
		if h.audit != nil {
			r.Get("/audit", h.handleAdminAudit)
		}
	})
}

type registrationResponse struct {
	User           *models.UserProfile `json:"user"`
	OrganizationID id.OrganizationID   `json:"organization_id"`
	AccessToken    string              `json:"access_token,omitempty"`
	TokenType      string              `json:"token_type,omitempty"`
	ExpiresIn      int                 `json:"expires_in,omitempty"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var req models.RegistrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid registration request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result := h.registrar.Execute(ctx, &req)
	if !result.Success {
		httputil.WriteJSON(w, statusForCategory(result.ErrorCategory), httputil.ErrorResponse{
			Error:            result.ErrorCategory,
			ErrorDescription: result.ErrorMessage,
		})
		return
	}

	resp := registrationResponse{User: result.User, OrganizationID: result.OrganizationID}
	if h.tokens != nil && result.User != nil {
		token, err := h.tokens.GenerateAccessToken(result.User.ID, h.tokenTTL)
		if err != nil {
			// The account exists; the client can sign in normally.
			h.logger.ErrorContext(ctx, "failed to issue access token after registration",
				"request_id", requestID,
				"identity_id", result.User.ID.String(),
				"error", err.Error(),
			)
		} else {
			resp.AccessToken = token
			resp.TokenType = "Bearer"
			resp.ExpiresIn = int(h.tokenTTL.Seconds())
		}
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleSelfRecovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID := requestcontext.IdentityID(ctx)
	if identityID.IsNil() {
		h.logger.ErrorContext(ctx, "identity missing from context despite auth middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}
	h.writeRecovery(w, r, identityID)
}

func (h *Handler) handleAdminRecovery(w http.ResponseWriter, r *http.Request) {
	identityID, err := id.ParseIdentityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid identity id"))
		return
	}
	h.writeRecovery(w, r, identityID)
}

func (h *Handler) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID, err := id.ParseIdentityID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid identity id"))
		return
	}
	events, err := h.audit.List(ctx, identityID.String())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			"request_id", request.GetRequestID(ctx),
			"identity_id", identityID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list audit events"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) writeRecovery(w http.ResponseWriter, r *http.Request, identityID id.IdentityID) {
	ctx := r.Context()
	status, err := h.recovery.Check(ctx, identityID)
	if err != nil {
		h.logger.ErrorContext(ctx, "recovery check failed",
			"request_id", request.GetRequestID(ctx),
			"identity_id", identityID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func statusForCategory(category string) int {
	switch classifier.Category(category) {
	case classifier.CategoryValidation, classifier.CategoryInvalidInput:
		return http.StatusBadRequest
	case classifier.CategoryDuplicateAccount:
		return http.StatusConflict
	case classifier.CategoryRateLimit:
		return http.StatusTooManyRequests
	case classifier.CategoryTimeout:
		return http.StatusGatewayTimeout
	case classifier.CategoryProviderState:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
