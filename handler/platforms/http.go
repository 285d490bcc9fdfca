package platforms

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"compliance/handler"

	"github.com/google/uuid"
)

// HTTPAdapter serves a handler over plain HTTP. The first path segment
// selects the request type (POST /check, /history, /fix, /chat) unless
// an X-Request-Type header is present.
type HTTPAdapter struct {
	handler *handler.Handler
}

// NewHTTPAdapter creates a new HTTP adapter with the provided handler.
func NewHTTPAdapter(h *handler.Handler) *HTTPAdapter {
	return &HTTPAdapter{handler: h}
}

// ServeHTTP implements http.Handler.
func (a *HTTPAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.isHealthCheck(r.URL.Path) {
		a.handleHealth(w, r)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		a.writeErrorResponse(w, http.StatusMethodNotAllowed, handler.NewErrorResponse(
			uuid.New().String(),
			handler.CodeInvalidRequest,
			"Method not allowed",
			r.Method,
		))
		return
	}

	body, err := a.readBody(w, r)
	if err != nil {
		a.writeErrorResponse(w, http.StatusBadRequest, handler.NewErrorResponse(
			uuid.New().String(),
			handler.CodeInvalidRequest,
			"Failed to read request body",
			err.Error(),
		))
		return
	}

	req := a.buildRequest(r, body)
	resp, err := a.handler.Handle(r.Context(), req)

	a.writeResponse(w, resp, err)
}

func (a *HTTPAdapter) isHealthCheck(path string) bool {
	switch path {
	case "/health", "/healthz", "/ready", "/readyz", "/live", "/livez":
		return true
	default:
		return false
	}
}

func (a *HTTPAdapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := a.handler.Health(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"worker": a.handler.Worker().Name(),
		"time":   time.Now().UTC(),
	})
}

func (a *HTTPAdapter) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	maxSize := a.handler.Config().MaxRequestSize
	if maxSize <= 0 {
		maxSize = 1024 * 1024
	}

	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxSize))
}

func (a *HTTPAdapter) buildRequest(r *http.Request, body []byte) handler.Request {
	requestID := a.extractRequestID(r)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	return handler.Request{
		ID:        requestID,
		Source:    "http",
		Type:      a.extractRequestType(r),
		Payload:   json.RawMessage(body),
		Metadata:  a.extractMetadata(r),
		Timestamp: time.Now().UTC(),
	}
}

func (a *HTTPAdapter) extractRequestID(r *http.Request) string {
	for _, header := range []string{"X-Request-ID", "X-Correlation-ID", "Request-ID"} {
		if id := r.Header.Get(header); id != "" {
			return id
		}
	}
	return ""
}

func (a *HTTPAdapter) extractRequestType(r *http.Request) string {
	if reqType := r.Header.Get("X-Request-Type"); reqType != "" {
		return reqType
	}

	path := strings.Trim(r.URL.Path, "/")
	if idx := strings.Index(path, "/"); idx > 0 {
		return path[:idx]
	}
	return path
}

// extractMetadata records caller identity and request info. The bearer
// token is kept under auth_token for the advisor and redacted everywhere else.
func (a *HTTPAdapter) extractMetadata(r *http.Request) map[string]string {
	metadata := map[string]string{
		"http_method": r.Method,
		"http_path":   r.URL.Path,
		"http_host":   r.Host,
	}

	for _, header := range []string{"Content-Type", "User-Agent", "X-Forwarded-For", "X-Real-IP"} {
		if value := r.Header.Get(header); value != "" {
			metadata["header_"+strings.ToLower(strings.ReplaceAll(header, "-", "_"))] = value
		}
	}

	if userID := strings.TrimSpace(r.Header.Get("X-User-ID")); userID != "" {
		metadata[handler.MetadataUserID] = userID
	}

	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(token) != "" {
			metadata[handler.MetadataAuthToken] = strings.TrimSpace(token)
		}
		metadata["header_authorization"] = "[REDACTED]"
	}

	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		metadata[handler.MetadataTraceID] = traceID
	}

	return metadata
}

func (a *HTTPAdapter) writeResponse(w http.ResponseWriter, resp handler.Response, err error) {
	if err != nil && resp.Error == nil {
		resp = handler.NewErrorResponse(resp.ID, handler.CodeInternalError, "Request processing failed", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", resp.ID)
	for key, value := range resp.Metadata {
		w.Header().Set("X-"+key, value)
	}

	w.WriteHeader(StatusCode(resp))
	json.NewEncoder(w).Encode(resp)
}

func (a *HTTPAdapter) writeErrorResponse(w http.ResponseWriter, status int, resp handler.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", resp.ID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// StatusCode maps a response to its HTTP status code.
func StatusCode(resp handler.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}

	switch resp.Error.Code {
	case handler.CodeAuthRequired:
		return http.StatusUnauthorized
	case handler.CodeValidationError, handler.CodeInvalidRequest:
		return http.StatusBadRequest
	case handler.CodeNotFound:
		return http.StatusNotFound
	case handler.CodeMissingFunction:
		return http.StatusPreconditionFailed
	case handler.CodeTargetUnauthorized, handler.CodeBadResponse, handler.CodeGatewayError:
		return http.StatusBadGateway
	case handler.CodeTargetUnreachable:
		return http.StatusServiceUnavailable
	case handler.CodeTimeout:
		return http.StatusGatewayTimeout
	case handler.CodeCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
