package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"inspections-api/api/services"
	"inspections-api/pkg/shared"
	"inspections-api/pkg/store"
)

// maxBodyBytes caps request payloads.
const maxBodyBytes = 1 << 20

// HealthChecker reports the health of an optional dependency.
type HealthChecker interface {
	HealthCheck() error
}

type Handlers struct {
	inspectionService *services.InspectionService
	queryService      *services.QueryService
}

func NewHandlers(inspections *services.InspectionService, queries *services.QueryService) *Handlers {
	return &Handlers{
		inspectionService: inspections,
		queryService:      queries,
	}
}

// Inspection handlers
func (h *Handlers) ListInspections(w http.ResponseWriter, r *http.Request) {
	inspections, err := h.inspectionService.ListInspections(r.Context())
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, inspections)
}

func (h *Handlers) GetInspection(w http.ResponseWriter, r *http.Request) {
	inspection, err := h.inspectionService.GetInspection(r.Context(), r.PathValue("id"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, inspection)
}

func (h *Handlers) CreateInspection(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	inspection, err := h.inspectionService.CreateInspection(r.Context(), payload)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusCreated, inspection)
}

func (h *Handlers) PatchInspection(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodePayload(w, r)
	if !ok {
		return
	}

	inspection, err := h.inspectionService.UpdateInspection(r.Context(), r.PathValue("id"), payload)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, inspection)
}

func (h *Handlers) DeleteInspection(w http.ResponseWriter, r *http.Request) {
	if err := h.inspectionService.DeleteInspection(r.Context(), r.PathValue("id")); err != nil {
		sendServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Query handlers
func (h *Handlers) SearchInspections(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryService.SearchInspections(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetInspectionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queryService.GetInspectionStats(r.Context())
	if err != nil {
		sendServiceError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, stats)
}

func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, shared.MsgServiceRunning)
}

// Health check. nats may be nil when the change feed is disabled.
func (h *Handlers) HealthCheck(nats HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := shared.HealthStatus{
			Status:    "healthy",
			Service:   shared.ServiceName,
			Timestamp: time.Now(),
			Details:   make(map[string]string),
		}

		// Check record store
		if checker, ok := h.inspectionService.Store().(store.HealthChecker); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Health(ctx); err != nil {
				health.Status = "unhealthy"
				health.Details["store"] = "unhealthy: " + err.Error()
			} else {
				health.Details["store"] = "healthy"
			}
		} else {
			health.Details["store"] = "healthy"
		}

		// Check NATS
		if nats != nil {
			if err := nats.HealthCheck(); err != nil {
				health.Status = "unhealthy"
				health.Details["nats"] = "unhealthy: " + err.Error()
			} else {
				health.Details["nats"] = "healthy"
			}
		} else {
			health.Details["nats"] = "disabled"
		}

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}

		sendJSON(w, statusCode, health)
	}
}

// Helper functions
func decodePayload(w http.ResponseWriter, r *http.Request) (any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			// An empty body is an empty object; update then only refreshes date.
			return map[string]any{}, true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(w, http.StatusRequestEntityTooLarge, shared.MsgBodyTooLarge)
			return nil, false
		}
		sendError(w, http.StatusBadRequest, shared.MsgInvalidJSON)
		return nil, false
	}
	return payload, true
}

func sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	sendJSON(w, statusCode, shared.ErrorResponse{Error: message})
}

// sendServiceError maps the error taxonomy onto HTTP statuses.
func sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		sendJSON(w, http.StatusBadRequest, shared.ValidationErrorResponse{Errors: verr.Errors})
	case errors.Is(err, shared.ErrInvalidInput):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		sendError(w, http.StatusNotFound, shared.MsgNotFound)
	default:
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
		sendError(w, http.StatusInternalServerError, shared.MsgInternalError)
	}
}

// RegisterRoutes sets up all API routes
func (h *Handlers) RegisterRoutes(mux *http.ServeMux, nats HealthChecker) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.HealthCheck(nats))

	mux.HandleFunc("GET /api/inspections", h.ListInspections)
	mux.HandleFunc("POST /api/inspections", h.CreateInspection)
	mux.HandleFunc("GET /api/inspections/search", h.SearchInspections)
	mux.HandleFunc("GET /api/inspections/stats", h.GetInspectionStats)
	mux.HandleFunc("GET /api/inspections/{id}", h.GetInspection)
	mux.HandleFunc("PATCH /api/inspections/{id}", h.PatchInspection)
	mux.HandleFunc("DELETE /api/inspections/{id}", h.DeleteInspection)
}
