package platforms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"compliance/config"
	"compliance/handler"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
)

// LambdaAdapter runs a handler inside the AWS Lambda runtime. It accepts
// SQS batches (one request per message) and API Gateway proxy events.
type LambdaAdapter struct {
	handler *handler.Handler
	config  config.LambdaConfig
}

// NewLambdaAdapter creates a Lambda adapter. A nil config uses defaults.
func NewLambdaAdapter(h *handler.Handler, cfg *config.LambdaConfig) *LambdaAdapter {
	if cfg == nil {
		defaults := config.DefaultLambdaConfig()
		cfg = &defaults
	}
	return &LambdaAdapter{
		handler: h,
		config:  *cfg,
	}
}

// Start blocks in the Lambda runtime loop.
func (a *LambdaAdapter) Start() {
	lambda.Start(a.HandleEvent)
}

// HandleEvent routes a raw Lambda event to the matching event handler.
func (a *LambdaAdapter) HandleEvent(ctx context.Context, event json.RawMessage) (interface{}, error) {
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(event, &sqsEvent); err == nil && len(sqsEvent.Records) > 0 && sqsEvent.Records[0].EventSource == "aws:sqs" {
		return a.handleSQSEvent(ctx, sqsEvent)
	}

	var apiEvent events.APIGatewayProxyRequest
	if err := json.Unmarshal(event, &apiEvent); err == nil && apiEvent.HTTPMethod != "" {
		return a.handleAPIGatewayEvent(ctx, apiEvent)
	}

	return nil, fmt.Errorf("unsupported event type")
}

// handleSQSEvent processes each record; retryable failures are reported
// as batch item failures so SQS redelivers only those messages.
func (a *LambdaAdapter) handleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{
		BatchItemFailures: []events.SQSBatchItemFailure{},
	}

	for _, record := range event.Records {
		if err := a.processSQSMessage(ctx, record); err != nil {
			if !a.config.EnablePartialBatchFailure {
				return response, err
			}
			response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}

	return response, nil
}

func (a *LambdaAdapter) processSQSMessage(ctx context.Context, record events.SQSMessage) error {
	request := a.buildRequestFromSQS(record)

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	response, err := a.handler.Handle(ctx, request)
	if err != nil {
		return fmt.Errorf("handler error: %w", err)
	}

	// Non-retryable failures are dropped so the message is not redelivered.
	if !response.Success && response.Error != nil && response.Error.Retryable {
		return fmt.Errorf("retryable error: %s", response.Error.Message)
	}

	return nil
}

func (a *LambdaAdapter) buildRequestFromSQS(record events.SQSMessage) handler.Request {
	metadata := make(map[string]string, len(record.MessageAttributes)+3)
	for key, attr := range record.MessageAttributes {
		if attr.StringValue != nil {
			metadata[key] = *attr.StringValue
		}
	}

	metadata["sqs_message_id"] = record.MessageId
	metadata["sqs_event_source"] = record.EventSource

	var payload json.RawMessage
	if err := json.Unmarshal([]byte(record.Body), &payload); err != nil {
		payload, _ = json.Marshal(record.Body)
	}

	requestType := "check"
	if msgType, ok := metadata["type"]; ok && msgType != "" {
		requestType = msgType
	}

	requestID := record.MessageId
	if id, ok := metadata["request_id"]; ok && id != "" {
		requestID = id
	}

	return handler.Request{
		ID:        requestID,
		Source:    "sqs",
		Type:      requestType,
		Payload:   payload,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

func (a *LambdaAdapter) handleAPIGatewayEvent(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	request := a.buildRequestFromAPIGateway(event)

	response, err := a.handler.Handle(ctx, request)
	if err != nil && response.Error == nil {
		response = handler.NewErrorResponse(request.ID, handler.CodeInternalError, "Request processing failed", err.Error())
	}

	body, marshalErr := json.Marshal(response)
	if marshalErr != nil {
		return events.APIGatewayProxyResponse{StatusCode: 500}, marshalErr
	}

	return events.APIGatewayProxyResponse{
		StatusCode: StatusCode(response),
		Headers: map[string]string{
			"Content-Type": "application/json",
			"X-Request-ID": response.ID,
		},
		Body: string(body),
	}, nil
}

func (a *LambdaAdapter) buildRequestFromAPIGateway(event events.APIGatewayProxyRequest) handler.Request {
	headers := make(map[string]string, len(event.Headers))
	for key, value := range event.Headers {
		headers[strings.ToLower(key)] = value
	}

	metadata := map[string]string{
		"http_method": event.HTTPMethod,
		"http_path":   event.Path,
	}
	if userID := headers["x-user-id"]; userID != "" {
		metadata[handler.MetadataUserID] = userID
	}
	if token, ok := strings.CutPrefix(headers["authorization"], "Bearer "); ok && token != "" {
		metadata[handler.MetadataAuthToken] = token
	}
	if traceID := headers["x-trace-id"]; traceID != "" {
		metadata[handler.MetadataTraceID] = traceID
	}

	requestType := headers["x-request-type"]
	if requestType == "" {
		path := strings.Trim(event.Path, "/")
		if idx := strings.Index(path, "/"); idx > 0 {
			path = path[:idx]
		}
		requestType = path
	}

	requestID := event.RequestContext.RequestID
	if id := headers["x-request-id"]; id != "" {
		requestID = id
	}

	return handler.Request{
		ID:        requestID,
		Source:    "apigateway",
		Type:      requestType,
		Payload:   json.RawMessage(event.Body),
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}
