package platforms

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"compliance/config"
	"compliance/handler"
	"compliance/handler/mocks"
	obmocks "compliance/observability/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newHTTPAdapter(worker *mocks.MockWorker) *HTTPAdapter {
	cfg := config.DefaultHandlerConfig()
	cfg.Platform = "http"
	return NewHTTPAdapter(handler.NewHandler(worker, obmocks.NewPermissiveProvider(), &cfg))
}

func TestHTTPAdapter_ServeHTTP(t *testing.T) {
	t.Run("routes by path and forwards identity", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.Type == "check" &&
				req.ID == "req-1" &&
				req.Metadata[handler.MetadataUserID] == "user-1" &&
				req.Metadata[handler.MetadataAuthToken] == "jwt-token" &&
				req.Metadata["header_authorization"] == "[REDACTED]"
		})).Return(handler.Response{
			ID:      "req-1",
			Success: true,
			Data:    json.RawMessage(`{"verdict":"pass"}`),
		}, nil)

		req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString(`{"project_id":"p-1","check_type":"mfa"}`))
		req.Header.Set("X-Request-ID", "req-1")
		req.Header.Set("X-User-ID", "user-1")
		req.Header.Set("Authorization", "Bearer jwt-token")

		w := httptest.NewRecorder()
		newHTTPAdapter(worker).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

		var resp handler.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.JSONEq(t, `{"verdict":"pass"}`, string(resp.Data))
		worker.AssertExpectations(t)
	})

	t.Run("maps error codes to status", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.ExpectProcessAny(handler.NewErrorResponse("req-1", handler.CodeAuthRequired, "Authentication required", ""), nil)

		req := httptest.NewRequest(http.MethodPost, "/history", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()
		newHTTPAdapter(worker).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("infrastructure error becomes internal error", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.ExpectProcessAny(handler.Response{}, errors.New("db down"))

		req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()
		newHTTPAdapter(worker).ServeHTTP(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var resp handler.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, handler.CodeInternalError, resp.Error.Code)
	})

	t.Run("rejects non-post methods", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/check", nil)
		w := httptest.NewRecorder()
		newHTTPAdapter(&mocks.MockWorker{}).ServeHTTP(w, req)

		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	})
}

func TestHTTPAdapter_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.On("Health", mock.Anything).Return(nil)

		w := httptest.NewRecorder()
		newHTTPAdapter(worker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	})

	t.Run("unhealthy", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Health", mock.Anything).Return(errors.New("ledger unavailable"))

		w := httptest.NewRecorder()
		newHTTPAdapter(worker).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "ledger unavailable")
	})
}

func TestStatusCode(t *testing.T) {
	tests := map[string]int{
		handler.CodeAuthRequired:       http.StatusUnauthorized,
		handler.CodeValidationError:    http.StatusBadRequest,
		handler.CodeNotFound:           http.StatusNotFound,
		handler.CodeMissingFunction:    http.StatusPreconditionFailed,
		handler.CodeTargetUnauthorized: http.StatusBadGateway,
		handler.CodeTargetUnreachable:  http.StatusServiceUnavailable,
		handler.CodeGatewayError:       http.StatusBadGateway,
		handler.CodeTimeout:            http.StatusGatewayTimeout,
		handler.CodeLedgerError:        http.StatusInternalServerError,
	}

	for code, status := range tests {
		t.Run(code, func(t *testing.T) {
			assert.Equal(t, status, StatusCode(handler.NewErrorResponse("id", code, "m", "")))
		})
	}

	ok, _ := handler.NewSuccessResponse("id", nil)
	assert.Equal(t, http.StatusOK, StatusCode(ok))
}
