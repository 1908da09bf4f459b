package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"offer-api/internal/logging"
	"offer-api/internal/mapper"
	"offer-api/internal/models"
	"offer-api/internal/service"
	"offer-api/internal/store"
	"offer-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
	logger      logrus.FieldLogger
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	Logger      logrus.FieldLogger
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 10 << 20, // 10MB default
		Logger:      logging.Discard(),
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
		logger:      opts.Logger,
	}
}

// Routes mounts the offer endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/offers", func(r chi.Router) {
		r.Post("/", h.CreateOffer)
		r.Get("/", h.ListOffers)
		r.Get("/{id}", h.GetOffer)
		r.Put("/{id}", h.ReplaceOffer)
		r.Delete("/{id}", h.DeleteOffer)
	})
}

// CreateOffer handles POST /offers
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}

	resp, err := h.service.CreateOffer(r.Context(), payload)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, resp)
}

// GetOffer handles GET /offers/{id}
func (h *Handler) GetOffer(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetOffer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// ReplaceOffer handles PUT /offers/{id}
func (h *Handler) ReplaceOffer(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}

	if err := h.service.ReplaceOffer(r.Context(), chi.URLParam(r, "id"), payload); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteOffer handles DELETE /offers/{id}
func (h *Handler) DeleteOffer(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteOffer(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListOffers handles GET /offers
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListOffers(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// decodePayload reads the request body as a JSON object. On failure it has
// already written the response.
func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			h.respondError(w, http.StatusBadRequest, "request body is required")
		case errors.As(err, &maxErr):
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		}
		return nil, false
	}

	if body == nil {
		h.respondError(w, http.StatusBadRequest, "request body is required")
		return nil, false
	}
	payload, ok := body.(map[string]any)
	if !ok {
		h.respondError(w, http.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return payload, true
}

// respondServiceError maps a service error to its status code.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		vErr   *validation.ValidationError
		sErr   *service.StoreError
		invErr *mapper.InvariantError
	)

	switch {
	case errors.As(err, &vErr):
		violations := make([]models.Violation, len(vErr.Violations))
		for i, v := range vErr.Violations {
			violations[i] = models.Violation{Field: v.Field, Kind: string(v.Kind), Message: v.Message}
		}
		h.respondJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:      vErr.Error(),
			Violations: violations,
		})
	case errors.Is(err, validation.ErrMalformedRequest):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrOfferNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &sErr):
		status := http.StatusBadGateway
		if errors.Is(err, store.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("store failure")
		h.respondError(w, status, "offer store failure: "+sErr.Op)
	case errors.As(err, &invErr):
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("stored offer violates schema")
		h.respondError(w, http.StatusInternalServerError, "internal error")
	default:
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("unhandled error")
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
