package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"compliance/config"
	"compliance/handler"
	"compliance/handler/mocks"
	obmocks "compliance/observability/mocks"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func stringPtr(s string) *string {
	return &s
}

func newTestHandler(worker *mocks.MockWorker) *handler.Handler {
	cfg := config.DefaultHandlerConfig()
	cfg.Platform = "lambda"
	return handler.NewHandler(worker, obmocks.NewPermissiveProvider(), &cfg)
}

func sqsRecord(id, body string, attrs map[string]string) events.SQSMessage {
	attributes := make(map[string]events.SQSMessageAttribute, len(attrs))
	for k, v := range attrs {
		attributes[k] = events.SQSMessageAttribute{StringValue: stringPtr(v), DataType: "String"}
	}
	return events.SQSMessage{
		MessageId:         id,
		EventSource:       "aws:sqs",
		Body:              body,
		MessageAttributes: attributes,
	}
}

func TestLambdaAdapter_HandleSQSEvent(t *testing.T) {
	t.Run("builds request from message attributes", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.Source == "sqs" &&
				req.ID == "msg-1" &&
				req.Type == "history" &&
				req.Metadata[handler.MetadataUserID] == "user-1" &&
				req.Metadata[handler.MetadataAuthToken] == "token-1"
		})).Return(handler.Response{ID: "msg-1", Success: true}, nil)

		adapter := NewLambdaAdapter(newTestHandler(worker), nil)

		response, err := adapter.handleSQSEvent(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{
				sqsRecord("msg-1", `{"project_id":"p-1","check_type":"rls"}`, map[string]string{
					"type":       "history",
					"user_id":    "user-1",
					"auth_token": "token-1",
				}),
			},
		})

		require.NoError(t, err)
		assert.Empty(t, response.BatchItemFailures)
		worker.AssertExpectations(t)
	})

	t.Run("defaults to check type", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.ExpectProcess("check", handler.Response{Success: true}, nil)

		adapter := NewLambdaAdapter(newTestHandler(worker), nil)

		_, err := adapter.handleSQSEvent(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{sqsRecord("msg-1", `{"project_id":"p-1"}`, nil)},
		})

		require.NoError(t, err)
		worker.AssertExpectations(t)
	})

	t.Run("reports only retryable failures", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.ID == "msg-1"
		})).Return(handler.Response{ID: "msg-1", Success: true}, nil)
		worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.ID == "msg-2"
		})).Return(handler.NewErrorResponse("msg-2", handler.CodeTargetUnreachable, "unreachable", ""), nil)
		worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.ID == "msg-3"
		})).Return(handler.NewErrorResponse("msg-3", handler.CodeMissingFunction, "missing", ""), nil)

		adapter := NewLambdaAdapter(newTestHandler(worker), &config.LambdaConfig{EnablePartialBatchFailure: true})

		response, err := adapter.handleSQSEvent(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{
				sqsRecord("msg-1", `{}`, nil),
				sqsRecord("msg-2", `{}`, nil),
				sqsRecord("msg-3", `{}`, nil),
			},
		})

		require.NoError(t, err)
		require.Len(t, response.BatchItemFailures, 1)
		assert.Equal(t, "msg-2", response.BatchItemFailures[0].ItemIdentifier)
	})

	t.Run("fails whole batch without partial failures", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.ExpectProcessAny(handler.NewErrorResponse("msg-1", handler.CodeTargetUnreachable, "unreachable", ""), nil)

		adapter := NewLambdaAdapter(newTestHandler(worker), &config.LambdaConfig{EnablePartialBatchFailure: false})

		_, err := adapter.handleSQSEvent(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{sqsRecord("msg-1", `{}`, nil)},
		})

		assert.Error(t, err)
	})
}

func TestLambdaAdapter_HandleEvent(t *testing.T) {
	t.Run("api gateway proxy event", func(t *testing.T) {
		worker := &mocks.MockWorker{}
		worker.On("Name").Return("compliance")
		worker.On("Process", mock.Anything, mock.MatchedBy(func(req handler.Request) bool {
			return req.Type == "check" &&
				req.Source == "apigateway" &&
				req.Metadata[handler.MetadataUserID] == "user-1" &&
				req.Metadata[handler.MetadataAuthToken] == "jwt"
		})).Return(handler.NewErrorResponse("req-1", handler.CodeMissingFunction, "missing", "CREATE FUNCTION"), nil)

		adapter := NewLambdaAdapter(newTestHandler(worker), nil)

		event, err := json.Marshal(events.APIGatewayProxyRequest{
			HTTPMethod: http.MethodPost,
			Path:       "/check",
			Headers: map[string]string{
				"X-User-ID":     "user-1",
				"Authorization": "Bearer jwt",
			},
			Body: `{"project_id":"p-1","check_type":"rls"}`,
		})
		require.NoError(t, err)

		result, err := adapter.HandleEvent(context.Background(), event)

		require.NoError(t, err)
		proxy, ok := result.(events.APIGatewayProxyResponse)
		require.True(t, ok)
		assert.Equal(t, http.StatusPreconditionFailed, proxy.StatusCode)
		assert.Contains(t, proxy.Body, "MISSING_FUNCTION")
	})

	t.Run("unsupported event", func(t *testing.T) {
		adapter := NewLambdaAdapter(newTestHandler(&mocks.MockWorker{}), nil)

		_, err := adapter.HandleEvent(context.Background(), json.RawMessage(`{"foo":"bar"}`))

		assert.EqualError(t, err, "unsupported event type")
	})
}
