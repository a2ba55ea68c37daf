package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/haeingest/internal/catalog"
	"github.com/claude/haeingest/internal/ingest"
	"github.com/claude/haeingest/internal/storage"
)

// Error codes returned beside the ingest validation codes.
const (
	codeMissingAuthorization = "MISSING_AUTHORIZATION"
	codeInvalidAPIKey        = "INVALID_API_KEY"
	codePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	codeReadError            = "READ_ERROR"
	codeWriteError           = "WRITE_ERROR"
	codeInternal             = "INTERNAL_ERROR"
	codeNotSupported         = "NOT_SUPPORTED"
	codeBadRequest           = "BAD_REQUEST"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type errorResponse struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ingestResponse struct {
	Status string `json:"status"`
	*ingest.Summary
}

type writeErrorResponse struct {
	errorResponse
	Summary *ingest.Summary `json:"summary,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, errorResponse{Status: statusError, ErrorCode: code, Message: message, RequestID: requestID})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes", requestID)
			return
		}
		writeError(w, http.StatusBadRequest, codeReadError, "reading request body: "+err.Error(), requestID)
		return
	}

	sum, err := s.hae.Ingest(r.Context(), requestID, body)
	if err != nil {
		var ve *ingest.ValidationError
		var we *ingest.WriteError
		switch {
		case errors.As(err, &ve):
			s.log.Warn("rejected payload", "request_id", requestID, "code", ve.Code, "error", err)
			writeError(w, http.StatusBadRequest, ve.Code, ve.Message, requestID)
		case errors.As(err, &we):
			s.log.Error("ingest write failed", "request_id", requestID, "points", we.Points, "error", err)
			writeJSON(w, http.StatusInternalServerError, writeErrorResponse{
				errorResponse: errorResponse{
					Status:    statusError,
					ErrorCode: codeWriteError,
					Message:   err.Error(),
					RequestID: requestID,
				},
				Summary: sum,
			})
		default:
			s.log.Error("ingest error", "request_id", requestID, "error", err)
			writeError(w, http.StatusInternalServerError, codeInternal, err.Error(), requestID)
		}
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{Status: statusSuccess, Summary: sum})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": ServiceName,
		"version": s.version,
		"status":  "running",
		"endpoints": map[string]string{
			"ingest":  "POST /api/v1/ingest",
			"health":  "GET /health",
			"catalog": "GET /api/v1/catalog",
			"metrics": "GET /metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unhealthy",
			"storage": "unreachable",
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "storage": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": catalog.Rules(),
		"workout": catalog.Workout(),
	})
}

func (s *Server) handleImports(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.(storage.ImportRecorder)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotSupported, "storage backend does not record imports", requestIDFromContext(r))
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be between 1 and 500", requestIDFromContext(r))
			return
		}
		limit = n
	}

	logs, err := rec.QueryImportLogs(r.Context(), limit)
	if err != nil {
		s.log.Error("query import logs", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error(), requestIDFromContext(r))
		return
	}
	if logs == nil {
		logs = []storage.ImportLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
