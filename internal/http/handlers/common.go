package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/iago/studyhub-back/internal/http/middleware"
	"github.com/iago/studyhub-back/internal/logging"
	"github.com/iago/studyhub-back/internal/repository"
	"github.com/iago/studyhub-back/internal/service"
	"github.com/rs/zerolog"
)

const (
	defaultMaxBodyBytes   = 60 << 20
	defaultMaxUploadBytes = 50 << 20
)

var errInvalidPayload = errors.New("invalid payload")

// Readiness reports which optional collaborators are configured.
type Readiness struct {
	Gemini     bool   `json:"gemini"`
	AssemblyAI bool   `json:"assemblyai"`
	Captions   bool   `json:"captions"`
	Storage    bool   `json:"storage"`
	Database   bool   `json:"database"`
	Queue      string `json:"queue"`
}

type APIDependencies struct {
	Processing     *service.ProcessingService
	Jobs           *service.JobsService
	Library        *service.LibraryService
	Readiness      Readiness
	MaxUploadBytes int64
	Logger         *zerolog.Logger
}

type API struct {
	processing     *service.ProcessingService
	jobs           *service.JobsService
	library        *service.LibraryService
	readiness      Readiness
	maxUploadBytes int64
	logger         *zerolog.Logger
}

func NewAPI(deps APIDependencies) *API {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = defaultMaxUploadBytes
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	return &API{
		processing:     deps.Processing,
		jobs:           deps.Jobs,
		library:        deps.Library,
		readiness:      deps.Readiness,
		maxUploadBytes: deps.MaxUploadBytes,
		logger:         deps.Logger,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

// writeError maps a service error onto the HTTP error envelope.
func (api *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		logger := logging.With(r.Context(), api.logger)
		logger.Error().Err(err).Int("status", status).Str("code", code).Msg("request failed")
	}
	writeErrorCode(w, r, status, code, message)
}

func classify(err error) (int, string, string) {
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound, "not_found", "resource not found"
	}
	if errors.Is(err, errInvalidPayload) {
		return http.StatusBadRequest, "invalid_request", "invalid JSON payload"
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, "payload_too_large", "request body is too large"
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind.HTTPStatus(), domainErr.Kind.Code(), domainErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind := domain.KindTimeout
		return kind.HTTPStatus(), kind.Code(), "request timed out"
	}
	return http.StatusInternalServerError, "internal_error", "internal server error"
}

// decodeJSON reads a bounded JSON body. Unknown fields are tolerated so
// clients can send their richer local shapes.
func decodeJSON(w http.ResponseWriter, r *http.Request, value any) error {
	body := http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	if err := json.NewDecoder(body).Decode(value); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return errInvalidPayload
	}
	return nil
}

func userID(r *http.Request) string {
	return middleware.UserID(r.Context())
}
