// Package server serves the SQS JSON protocol over HTTP on top of a
// store.Store, enough of it for SDK clients to create, use and delete
// queues against a local process.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tabeth/sqstreams/models"
	"github.com/tabeth/sqstreams/store"
)

const (
	maxBodySize        = 262144
	maxBatchEntries    = 10
	contentTypeJSON    = "application/x-amz-json-1.0"
	queryErrorHeader   = "x-amzn-query-error"
	targetPrefix       = "AmazonSQS"
	defaultAccountARN  = "arn:aws:sqs:us-east-1:000000000000:"
	nonExistentQueue   = "AWS.SimpleQueueService.NonExistentQueue"
	purgeInProgress    = "AWS.SimpleQueueService.PurgeQueueInProgress"
	queueDoesNotExist  = "QueueDoesNotExist"
	invalidParameter   = "InvalidParameterValue"
	missingParameter   = "MissingParameter"
	receiptHandleError = "ReceiptHandleIsInvalid"
)

// App holds the handlers' dependencies.
type App struct {
	Store  store.Store
	Logger *slog.Logger
}

// NewRouter returns a router serving app with request logging and panic
// recovery.
func NewRouter(app *App) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(app.logRequests)
	app.RegisterSQSHandlers(r)
	return r
}

// RegisterSQSHandlers mounts the JSON protocol endpoint. Clients address it
// at "/" or at a queue URL.
func (app *App) RegisterSQSHandlers(r chi.Router) {
	r.Post("/", app.RootSQSHandler)
	r.Post("/queues/{queueName}", app.RootSQSHandler)
}

func (app *App) logger() *slog.Logger {
	if app.Logger != nil {
		return app.Logger
	}
	return slog.Default()
}

func (app *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		app.logger().Debug("request",
			"target", r.Header.Get("X-Amz-Target"),
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// RootSQSHandler dispatches on the X-Amz-Target header.
func (app *App) RootSQSHandler(w http.ResponseWriter, r *http.Request) {
	prefix, action, ok := strings.Cut(r.Header.Get("X-Amz-Target"), ".")
	if !ok || prefix != targetPrefix {
		app.sendErrorResponse(w, "InvalidAction", "Invalid X-Amz-Target header", http.StatusBadRequest)
		return
	}

	switch action {
	case "CreateQueue":
		app.CreateQueueHandler(w, r)
	case "GetQueueUrl":
		app.GetQueueUrlHandler(w, r)
	case "DeleteQueue":
		app.DeleteQueueHandler(w, r)
	case "ListQueues":
		app.ListQueuesHandler(w, r)
	case "PurgeQueue":
		app.PurgeQueueHandler(w, r)
	case "GetQueueAttributes":
		app.GetQueueAttributesHandler(w, r)
	case "ListQueueTags":
		app.ListQueueTagsHandler(w, r)
	case "SendMessage":
		app.SendMessageHandler(w, r)
	case "ReceiveMessage":
		app.ReceiveMessageHandler(w, r)
	case "DeleteMessage":
		app.DeleteMessageHandler(w, r)
	case "DeleteMessageBatch":
		app.DeleteMessageBatchHandler(w, r)
	case "ChangeMessageVisibility":
		app.ChangeMessageVisibilityHandler(w, r)
	default:
		app.sendErrorResponse(w, "UnsupportedOperation", "Unsupported operation: "+action, http.StatusBadRequest)
	}
}

// queryErrorCodes maps JSON error types to the codes query-compatible
// clients expect in the x-amzn-query-error header.
var queryErrorCodes = map[string]string{
	queueDoesNotExist:          nonExistentQueue,
	"PurgeQueueInProgress":     purgeInProgress,
	"QueueNameExists":          "QueueAlreadyExists",
	receiptHandleError:         receiptHandleError,
	"BatchEntryIdsNotDistinct": "AWS.SimpleQueueService.BatchEntryIdsNotDistinct",
	"EmptyBatchRequest":        "AWS.SimpleQueueService.EmptyBatchRequest",
}

func (app *App) sendErrorResponse(w http.ResponseWriter, errorType string, message string, statusCode int) {
	if code, ok := queryErrorCodes[errorType]; ok {
		fault := "Sender"
		if statusCode >= http.StatusInternalServerError {
			fault = "Receiver"
		}
		w.Header().Set(queryErrorHeader, code+";"+fault)
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{Type: errorType, Message: message})
}

func (app *App) sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// sendStoreError maps store errors onto SQS error types.
func (app *App) sendStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrQueueDoesNotExist):
		app.sendErrorResponse(w, queueDoesNotExist, "The specified queue does not exist.", http.StatusBadRequest)
	case errors.Is(err, store.ErrPurgeQueueInProgress):
		app.sendErrorResponse(w, "PurgeQueueInProgress", "Only one PurgeQueue operation is allowed every 60 seconds.", http.StatusBadRequest)
	case errors.Is(err, store.ErrInvalidReceiptHandle):
		app.sendErrorResponse(w, receiptHandleError, "The input receipt handle is invalid.", http.StatusBadRequest)
	case errors.Is(err, store.ErrMissingGroupID), errors.Is(err, store.ErrMissingDeduplicationID):
		app.sendErrorResponse(w, missingParameter, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrUnsupportedParameter):
		app.sendErrorResponse(w, invalidParameter, err.Error(), http.StatusBadRequest)
	default:
		app.logger().Error("store operation failed", "op", op, "error", err)
		app.sendErrorResponse(w, "InternalFailure", err.Error(), http.StatusInternalServerError)
	}
}

// decode reads the request body into v and resolves the queue name from
// its QueueUrl. It writes the error response itself and reports false on
// failure.
func (app *App) decode(w http.ResponseWriter, r *http.Request, v any, queueURL func() string) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return "", false
	}
	if queueURL == nil {
		return "", true
	}
	u := queueURL()
	if u == "" {
		app.sendErrorResponse(w, missingParameter, "The request must contain the parameter QueueUrl.", http.StatusBadRequest)
		return "", false
	}
	return path.Base(u), true
}

func (app *App) queueURL(r *http.Request, name string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/queues/%s", scheme, r.Host, name)
}

var queueNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,80}(\.fifo)?$`)

func validateIntAttribute(valStr string, lo, hi int) error {
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return errors.New("must be an integer")
	}
	if val < lo || val > hi {
		return fmt.Errorf("must be between %d and %d", lo, hi)
	}
	return nil
}

// ValidateAttributes checks queue attribute values against SQS limits.
// Unknown attributes are accepted.
func ValidateAttributes(attributes map[string]string) error {
	for key, val := range attributes {
		var err error
		switch key {
		case "DelaySeconds":
			err = validateIntAttribute(val, 0, 900)
		case "MaximumMessageSize":
			err = validateIntAttribute(val, 1024, 262144)
		case "MessageRetentionPeriod":
			err = validateIntAttribute(val, 60, 1209600)
		case "ReceiveMessageWaitTimeSeconds":
			err = validateIntAttribute(val, 0, 20)
		case "VisibilityTimeout":
			err = validateIntAttribute(val, 0, 43200)
		case "FifoQueue", "ContentBasedDeduplication":
			if val != "true" && val != "false" {
				err = errors.New("must be 'true' or 'false'")
			}
		case "DeduplicationScope":
			if val != "messageGroup" && val != "queue" {
				err = errors.New("must be 'messageGroup' or 'queue'")
			}
		case "FifoThroughputLimit":
			if val != "perQueue" && val != "perMessageGroupId" {
				err = errors.New("must be 'perQueue' or 'perMessageGroupId'")
			}
		case "Policy":
			if !json.Valid([]byte(val)) {
				err = errors.New("must be a valid JSON object")
			}
		}
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}
	return nil
}

// IsSqsMessageBodyValid reports whether body only holds characters SQS
// accepts: #x9 | #xA | #xD | #x20 to #xD7FF | #xE000 to #xFFFD | #x10000 to #x10FFFF.
func IsSqsMessageBodyValid(body string) bool {
	for _, r := range body {
		if (r == 0x9 || r == 0xA || r == 0xD) ||
			(r >= 0x20 && r <= 0xD7FF) ||
			(r >= 0xE000 && r <= 0xFFFD) ||
			(r >= 0x10000 && r <= 0x10FFFF) {
			continue
		}
		return false
	}
	return true
}

func (app *App) CreateQueueHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQueueRequest
	if _, ok := app.decode(w, r, &req, nil); !ok {
		return
	}
	if !queueNameRegex.MatchString(req.QueueName) {
		app.sendErrorResponse(w, invalidParameter, "Can only include alphanumeric characters, hyphens, or underscores. 1 to 80 in length", http.StatusBadRequest)
		return
	}
	if err := ValidateAttributes(req.Attributes); err != nil {
		app.sendErrorResponse(w, "InvalidAttributeValue", err.Error(), http.StatusBadRequest)
		return
	}

	isFifo := strings.HasSuffix(req.QueueName, ".fifo")
	isFifoAttr := req.Attributes["FifoQueue"] == "true"
	switch {
	case isFifo && !isFifoAttr:
		app.sendErrorResponse(w, invalidParameter, "Queue name ends in .fifo but FifoQueue attribute is not 'true'", http.StatusBadRequest)
		return
	case !isFifo && isFifoAttr:
		app.sendErrorResponse(w, invalidParameter, "FifoQueue attribute is 'true' but queue name does not end in .fifo", http.StatusBadRequest)
		return
	case !isFifo:
		for _, attr := range []string{"ContentBasedDeduplication", "DeduplicationScope", "FifoThroughputLimit"} {
			if _, ok := req.Attributes[attr]; ok {
				app.sendErrorResponse(w, invalidParameter, attr+" is only valid for FIFO queues", http.StatusBadRequest)
				return
			}
		}
	}

	existing, err := app.Store.CreateQueue(r.Context(), req.QueueName, req.Attributes, req.Tags)
	if err != nil {
		app.sendStoreError(w, "CreateQueue", err)
		return
	}
	status := http.StatusCreated
	if existing != nil {
		for k, v := range req.Attributes {
			if cur, ok := existing[k]; ok && cur != v {
				app.sendErrorResponse(w, "QueueNameExists", "A queue already exists with the same name and a different value for attribute "+k, http.StatusBadRequest)
				return
			}
		}
		status = http.StatusOK
	}
	app.sendJSON(w, status, models.CreateQueueResponse{QueueURL: app.queueURL(r, req.QueueName)})
}

func (app *App) GetQueueUrlHandler(w http.ResponseWriter, r *http.Request) {
	var req models.GetQueueURLRequest
	if _, ok := app.decode(w, r, &req, nil); !ok {
		return
	}
	if req.QueueName == "" {
		app.sendErrorResponse(w, missingParameter, "The request must contain the parameter QueueName.", http.StatusBadRequest)
		return
	}
	if _, err := app.Store.GetQueueURL(r.Context(), req.QueueName); err != nil {
		app.sendStoreError(w, "GetQueueUrl", err)
		return
	}
	app.sendJSON(w, http.StatusOK, models.GetQueueURLResponse{QueueUrl: app.queueURL(r, req.QueueName)})
}

func (app *App) DeleteQueueHandler(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteQueueRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	if err := app.Store.DeleteQueue(r.Context(), name); err != nil {
		app.sendStoreError(w, "DeleteQueue", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (app *App) ListQueuesHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ListQueuesRequest
	if _, ok := app.decode(w, r, &req, nil); !ok {
		return
	}
	if req.MaxResults < 0 || req.MaxResults > 1000 {
		app.sendErrorResponse(w, invalidParameter, "MaxResults must be between 1 and 1000.", http.StatusBadRequest)
		return
	}
	names, next, err := app.Store.ListQueues(r.Context(), req.MaxResults, req.NextToken, req.QueueNamePrefix)
	if err != nil {
		app.sendStoreError(w, "ListQueues", err)
		return
	}
	urls := make([]string, len(names))
	for i, n := range names {
		urls[i] = app.queueURL(r, n)
	}
	app.sendJSON(w, http.StatusOK, models.ListQueuesResponse{QueueUrls: urls, NextToken: next})
}

func (app *App) PurgeQueueHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PurgeQueueRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	if err := app.Store.PurgeQueue(r.Context(), name); err != nil {
		app.sendStoreError(w, "PurgeQueue", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (app *App) GetQueueAttributesHandler(w http.ResponseWriter, r *http.Request) {
	var req models.GetQueueAttributesRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	attrs, err := app.Store.GetQueueAttributes(r.Context(), name)
	if err != nil {
		app.sendStoreError(w, "GetQueueAttributes", err)
		return
	}
	if attrs == nil {
		attrs = make(map[string]string)
	}
	attrs["QueueArn"] = defaultAccountARN + name

	if len(req.AttributeNames) > 0 && !slices.Contains(req.AttributeNames, "All") {
		selected := make(map[string]string, len(req.AttributeNames))
		for _, n := range req.AttributeNames {
			if v, ok := attrs[n]; ok {
				selected[n] = v
			}
		}
		attrs = selected
	}
	app.sendJSON(w, http.StatusOK, models.GetQueueAttributesResponse{Attributes: attrs})
}

func (app *App) ListQueueTagsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ListQueueTagsRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	tags, err := app.Store.ListQueueTags(r.Context(), name)
	if err != nil {
		app.sendStoreError(w, "ListQueueTags", err)
		return
	}
	app.sendJSON(w, http.StatusOK, models.ListQueueTagsResponse{Tags: tags})
}

func (app *App) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	if len(req.MessageBody) == 0 || len(req.MessageBody) > maxBodySize {
		app.sendErrorResponse(w, invalidParameter, "The message body must be between 1 and 262144 bytes long.", http.StatusBadRequest)
		return
	}
	if !IsSqsMessageBodyValid(req.MessageBody) {
		app.sendErrorResponse(w, "InvalidMessageContents", "The message contains characters outside the allowed set.", http.StatusBadRequest)
		return
	}
	if req.DelaySeconds != nil && (*req.DelaySeconds < 0 || *req.DelaySeconds > 900) {
		app.sendErrorResponse(w, invalidParameter, "DelaySeconds must be between 0 and 900.", http.StatusBadRequest)
		return
	}

	resp, err := app.Store.SendMessage(r.Context(), name, &req)
	if err != nil {
		app.sendStoreError(w, "SendMessage", err)
		return
	}
	app.sendJSON(w, http.StatusOK, resp)
}

func (app *App) ReceiveMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ReceiveMessageRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	if req.MaxNumberOfMessages != 0 && (req.MaxNumberOfMessages < 1 || req.MaxNumberOfMessages > maxBatchEntries) {
		app.sendErrorResponse(w, invalidParameter, "Value for parameter MaxNumberOfMessages is invalid. Reason: Must be between 1 and 10.", http.StatusBadRequest)
		return
	}
	if req.WaitTimeSeconds < 0 || req.WaitTimeSeconds > 20 {
		app.sendErrorResponse(w, invalidParameter, "Value for parameter WaitTimeSeconds is invalid. Reason: Must be between 0 and 20.", http.StatusBadRequest)
		return
	}

	resp, err := app.Store.ReceiveMessage(r.Context(), name, &req)
	if err != nil {
		app.sendStoreError(w, "ReceiveMessage", err)
		return
	}
	app.sendJSON(w, http.StatusOK, resp)
}

func (app *App) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteMessageRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	if req.ReceiptHandle == "" {
		app.sendErrorResponse(w, missingParameter, "The request must contain the parameter ReceiptHandle.", http.StatusBadRequest)
		return
	}
	if err := app.Store.DeleteMessage(r.Context(), name, req.ReceiptHandle); err != nil {
		app.sendStoreError(w, "DeleteMessage", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (app *App) DeleteMessageBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteMessageBatchRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	if len(req.Entries) == 0 {
		app.sendErrorResponse(w, "EmptyBatchRequest", "The batch request doesn't contain any entries.", http.StatusBadRequest)
		return
	}
	if len(req.Entries) > maxBatchEntries {
		app.sendErrorResponse(w, "TooManyEntriesInBatchRequest", "The batch request contains more entries than permissible.", http.StatusBadRequest)
		return
	}
	ids := make(map[string]bool, len(req.Entries))
	for _, e := range req.Entries {
		if ids[e.Id] {
			app.sendErrorResponse(w, "BatchEntryIdsNotDistinct", "Two or more batch entries in the request have the same Id.", http.StatusBadRequest)
			return
		}
		ids[e.Id] = true
	}

	resp, err := app.Store.DeleteMessageBatch(r.Context(), name, req.Entries)
	if err != nil {
		app.sendStoreError(w, "DeleteMessageBatch", err)
		return
	}
	app.sendJSON(w, http.StatusOK, resp)
}

func (app *App) ChangeMessageVisibilityHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeMessageVisibilityRequest
	name, ok := app.decode(w, r, &req, func() string { return req.QueueUrl })
	if !ok {
		return
	}
	if req.ReceiptHandle == "" {
		app.sendErrorResponse(w, missingParameter, "The request must contain the parameter ReceiptHandle.", http.StatusBadRequest)
		return
	}
	if req.VisibilityTimeout < 0 || req.VisibilityTimeout > 43200 {
		app.sendErrorResponse(w, invalidParameter, "VisibilityTimeout must be between 0 and 43200.", http.StatusBadRequest)
		return
	}
	if err := app.Store.ChangeMessageVisibility(r.Context(), name, req.ReceiptHandle, req.VisibilityTimeout); err != nil {
		app.sendStoreError(w, "ChangeMessageVisibility", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
