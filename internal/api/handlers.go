package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"imagegen/internal/generate"
	"imagegen/internal/models"

	"github.com/gorilla/mux"
)

// maxRequestBodyBytes caps generate request bodies. Prompts are limited to a
// few thousand characters, so anything larger is malformed.
const maxRequestBodyBytes = 64 << 10

// Handlers contains HTTP handlers for the image generation API
type Handlers struct {
	service   generate.ServiceInterface
	version   string
	startTime time.Time
}

// HandlerOption configures optional handler settings.
type HandlerOption func(*Handlers)

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers creates a new handlers instance
func NewHandlers(service generate.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		service:   service,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GenerateImage handles image generation requests
// POST /api/v1/images
func (h *Handlers) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}

	response, err := h.service.Generate(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", response.URL)
	h.writeJSONResponse(w, http.StatusCreated, response)
}

// ListImages handles gallery requests
// GET /api/v1/images
func (h *Handlers) ListImages(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.Gallery(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// DownloadImage streams a stored image as an attachment
// GET /api/v1/images/{name}
func (h *Handlers) DownloadImage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	f, info, err := h.service.OpenImage(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", imageContentType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, name, info.CreatedAt, f)
}

// ListGenerations handles history requests
// GET /api/v1/generations?limit=N&status=S
func (h *Handlers) ListGenerations(w http.ResponseWriter, r *http.Request) {
	req := &models.ListGenerationsRequest{
		Status: r.URL.Query().Get("status"),
	}

	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "limit must be an integer")
			return
		}
		req.Limit = limit
	}

	response, err := h.service.Generations(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// GetGeneration handles single history entry requests
// GET /api/v1/generations/{id}
func (h *Handlers) GetGeneration(w http.ResponseWriter, r *http.Request) {
	gen, err := h.service.Generation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, gen)
}

// GetQuota reports the outbound rate limit window
// GET /api/v1/quota
func (h *Handlers) GetQuota(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, h.service.Quota(r.Context()))
}

// HealthCheck handles health check requests
// GET /health
// Unhealthy services answer 503 so container probes fail.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := h.service.Health(r.Context())
	response.Version = h.version
	response.Uptime = time.Since(h.startTime).Round(time.Second).String()

	status := http.StatusOK
	if response.Status == models.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more to send
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSONResponse(w, statusCode, models.NewErrorResponse(message, errorCode))
}

// writeServiceError maps a service error to its HTTP form. Errors without
// HTTP context become an opaque 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *generate.ServiceError
	if !errors.As(err, &se) {
		slog.Error("Unhandled service error", "path", r.URL.Path, "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
		return
	}

	if se.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "code", se.Code, "error", err)
	}

	resp := models.NewErrorResponse(se.Message, se.Code)
	if se.RetryAfter > 0 {
		resp.RetryAfterSeconds = se.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	h.writeJSONResponse(w, se.StatusCode, resp)
}

func imageContentType(name string) string {
	switch filepath.Ext(name) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
