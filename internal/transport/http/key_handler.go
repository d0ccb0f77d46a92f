package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "cskeys/internal/errors"
	"cskeys/internal/keyservice"
	reqid "cskeys/internal/middleware"
)

// validate is the shared request validator instance.
var validate = validator.New()

// KeyHandler handles key lifecycle HTTP requests
type KeyHandler struct {
	service KeyService
	logger  *slog.Logger
}

// NewKeyHandler creates a new key handler
func NewKeyHandler(service KeyService, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "keys")),
	}
}

// KeyRequest is the payload for validate and consume endpoints.
type KeyRequest struct {
	Key string `json:"key" validate:"required,min=10,max=64"`
}

// Bind implements the render.Binder interface
func (k *KeyRequest) Bind(r *http.Request) error {
	if err := validate.Struct(k); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New("key is required and must be between 10 and 64 characters")
		}
		return err
	}
	return nil
}

// GenerateResponse wraps an issuance outcome with request metadata.
type GenerateResponse struct {
	keyservice.GenerateResult
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ValidateResponse wraps a validation outcome with request metadata.
type ValidateResponse struct {
	keyservice.ValidationResult
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ConsumeResponse wraps a consumption outcome with request metadata.
type ConsumeResponse struct {
	keyservice.ConsumeResult
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Routes returns a chi router for key endpoints
func (h *KeyHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/generate/free", h.GenerateFree)
	r.Post("/generate/paid", h.GeneratePaid)
	r.Post("/validate", h.Validate)
	r.Post("/consume", h.Consume)

	r.Route("/legacy", func(r chi.Router) {
		r.Post("/generate", h.GenerateLegacy)
		r.Post("/validate", h.ValidateLegacy)
		r.Post("/consume", h.ConsumeLegacy)
	})

	r.Get("/stats", h.Stats)
	r.Get("/stats/legacy", h.LegacyStats)
	r.Get("/list", h.List)
	r.Get("/audit", h.Audit)

	return r
}

// GenerateFree handles POST /api/keys/generate/free
func (h *KeyHandler) GenerateFree(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, h.service.GenerateFreeKey, "free")
}

// GeneratePaid handles POST /api/keys/generate/paid
func (h *KeyHandler) GeneratePaid(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, h.service.GeneratePaidKey, "paid")
}

// GenerateLegacy handles POST /api/keys/legacy/generate
func (h *KeyHandler) GenerateLegacy(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, h.service.GenerateLegacyKey, "legacy")
}

func (h *KeyHandler) generate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) keyservice.GenerateResult, kind string) {
	ctx := r.Context()
	reqID := reqid.GetRequestID(ctx)

	result := fn(ctx)

	status := http.StatusOK
	if !result.Success {
		switch result.FailureReason {
		case keyservice.FailureQuotaExceeded:
			status = http.StatusTooManyRequests
		case keyservice.FailureTransportError:
			status = http.StatusBadGateway
		default:
			status = http.StatusInternalServerError
		}
		h.logger.WarnContext(ctx, "key generation failed",
			slog.String("request_id", reqID),
			slog.String("kind", kind),
			slog.String("reason", string(result.FailureReason)),
		)
	}

	render.Status(r, status)
	render.JSON(w, r, &GenerateResponse{
		GenerateResult: result,
		TraceID:        reqID,
		Timestamp:      time.Now().UTC(),
	})
}

// Validate handles POST /api/keys/validate
func (h *KeyHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &KeyRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	result := h.service.ValidateKey(ctx, req.Key)
	render.JSON(w, r, &ValidateResponse{
		ValidationResult: result,
		TraceID:          reqid.GetRequestID(ctx),
		Timestamp:        time.Now().UTC(),
	})
}

// Consume handles POST /api/keys/consume
func (h *KeyHandler) Consume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &KeyRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	result := h.service.ConsumeKey(ctx, req.Key)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	render.Status(r, status)
	render.JSON(w, r, &ConsumeResponse{
		ConsumeResult: result,
		TraceID:       reqid.GetRequestID(ctx),
		Timestamp:     time.Now().UTC(),
	})
}

// ValidateLegacy handles POST /api/keys/legacy/validate
func (h *KeyHandler) ValidateLegacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &KeyRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	result := h.service.ValidateLegacyKey(ctx, req.Key)
	render.JSON(w, r, &ValidateResponse{
		ValidationResult: result,
		TraceID:          reqid.GetRequestID(ctx),
		Timestamp:        time.Now().UTC(),
	})
}

// ConsumeLegacy handles POST /api/keys/legacy/consume
func (h *KeyHandler) ConsumeLegacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := &KeyRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.InvalidRequestWithError(err)))
		return
	}

	result := h.service.ConsumeLegacyKey(ctx, req.Key)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	render.Status(r, status)
	render.JSON(w, r, &ConsumeResponse{
		ConsumeResult: result,
		TraceID:       reqid.GetRequestID(ctx),
		Timestamp:     time.Now().UTC(),
	})
}

// Stats handles GET /api/keys/stats
func (h *KeyHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.service.KeyStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "stats collection failed",
			slog.String("request_id", reqid.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.RemoteUnavailableError(err)))
		return
	}
	render.JSON(w, r, stats)
}

// LegacyStats handles GET /api/keys/stats/legacy
func (h *KeyHandler) LegacyStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.LegacyKeyStats())
}

// List handles GET /api/keys/list
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.ListKeys(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "key listing failed",
			slog.String("request_id", reqid.GetRequestID(ctx)),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.RemoteUnavailableError(err)))
		return
	}
	render.JSON(w, r, result)
}

// Audit handles GET /api/keys/audit
func (h *KeyHandler) Audit(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"records": h.service.AuditLog(),
	})
}
