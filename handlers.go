package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"

	"github.com/slateq/slateq/digest"
	"github.com/slateq/slateq/limits"
	"github.com/slateq/slateq/models"
	"github.com/slateq/slateq/store"
)

// App encapsulates the application's dependencies: the storage interface, the
// limits mode and the logger. It is the receiver for all HTTP handlers, which
// is the usual dependency-injection pattern for Go web services.
type App struct {
	Store  store.Store
	Limits limits.Mode
	Logger hclog.Logger
}

// longPollInterval is how often the receive long-poll loop re-checks the
// store for newly visible messages.
const longPollInterval = 100 * time.Millisecond

// defaultVisibilityTimeout is applied when CreateQueue does not specify one.
const defaultVisibilityTimeout = 30 * time.Second

// sendErrorResponse formats and sends error responses compatible with the
// emulated service: the amz-json error envelope with a __type code.
func (app *App) sendErrorResponse(w http.ResponseWriter, errorType string, message string, statusCode int) {
	errResp := models.ErrorResponse{
		Type:    errorType,
		Message: message,
	}
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errResp)
}

// RegisterHandlers registers the API endpoints with the chi router. The
// service follows the AWS convention of a single RPC-style endpoint where the
// action is carried in the X-Amz-Target header.
func (app *App) RegisterHandlers(r *chi.Mux) {
	r.Post("/", app.RootHandler)
}

// RootHandler dispatches requests on the primary RPC endpoint by the
// X-Amz-Target header, which carries "AmazonSQS.<ActionName>".
func (app *App) RootHandler(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Amz-Target")

	parts := strings.Split(target, ".")
	if len(parts) != 2 || parts[0] != "AmazonSQS" {
		app.sendErrorResponse(w, "InvalidAction", "Invalid X-Amz-Target header", http.StatusBadRequest)
		return
	}
	action := parts[1]

	switch action {
	case "CreateQueue":
		app.CreateQueueHandler(w, r)
	case "DeleteQueue":
		app.DeleteQueueHandler(w, r)
	case "ListQueues":
		app.ListQueuesHandler(w, r)
	case "GetQueueUrl":
		app.GetQueueUrlHandler(w, r)
	case "GetQueueAttributes":
		app.GetQueueAttributesHandler(w, r)
	case "SetQueueAttributes":
		app.SetQueueAttributesHandler(w, r)
	case "SendMessage":
		app.SendMessageHandler(w, r)
	case "SendMessageBatch":
		app.SendMessageBatchHandler(w, r)
	case "ReceiveMessage":
		app.ReceiveMessageHandler(w, r)
	case "DeleteMessage":
		app.DeleteMessageHandler(w, r)
	case "DeleteMessageBatch":
		app.DeleteMessageBatchHandler(w, r)
	case "ChangeMessageVisibility":
		app.ChangeMessageVisibilityHandler(w, r)
	case "ChangeMessageVisibilityBatch":
		app.ChangeMessageVisibilityBatchHandler(w, r)
	default:
		app.sendErrorResponse(w, "UnsupportedOperation", "Unsupported operation: "+action, http.StatusBadRequest)
	}
}

// --- Validation Helpers ---

// Queue name rules of the emulated service: up to 80 characters, alphanumeric
// plus hyphens and underscores.
var queueNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,80}$`)

// visibilityTimeoutFromAttributes parses the VisibilityTimeout queue
// attribute in seconds, falling back to the service default.
func visibilityTimeoutFromAttributes(attributes map[string]string) (time.Duration, error) {
	valStr, ok := attributes["VisibilityTimeout"]
	if !ok {
		return defaultVisibilityTimeout, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if val < 0 || val > 43200 {
		return 0, fmt.Errorf("must be between 0 and 43200")
	}
	return time.Duration(val) * time.Second, nil
}

// validateMessageAttributes checks the message attribute map: the count
// limit, the presence of a DataType, and the strict-mode range of Number
// values.
func (app *App) validateMessageAttributes(attributes map[string]models.MessageAttributeValue) error {
	if len(attributes) > 10 {
		return fmt.Errorf("number of message attributes cannot exceed 10")
	}
	for name, attr := range attributes {
		if name == "" {
			return fmt.Errorf("message attribute name cannot be empty")
		}
		if attr.DataType == "" {
			return fmt.Errorf("DataType of message attribute '%s' is required", name)
		}
		if attr.DataType == "Number" || strings.HasPrefix(attr.DataType, "Number.") {
			if attr.StringValue == nil {
				return fmt.Errorf("Number attribute '%s' has no value", name)
			}
			if err := limits.ValidateNumberAttribute(app.Limits, *attr.StringValue); err != nil {
				return err
			}
		}
	}
	return nil
}

// queueURL constructs the externally visible URL of a queue from the
// incoming request's host.
func queueURL(r *http.Request, name string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/queues/%s", scheme, r.Host, name)
}

// queueNameFromURL extracts the queue name from a queue URL: the last path
// segment.
func queueNameFromURL(queueURL string) string {
	return path.Base(queueURL)
}

// --- Queue Management Handlers ---

// CreateQueueHandler handles requests to create a new queue.
func (app *App) CreateQueueHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}

	if !queueNameRegex.MatchString(req.QueueName) {
		app.sendErrorResponse(w, "InvalidParameterValue", "Invalid queue name: Can only include alphanumeric characters, hyphens, and underscores. 1 to 80 in length.", http.StatusBadRequest)
		return
	}

	visibilityTimeout, err := visibilityTimeoutFromAttributes(req.Attributes)
	if err != nil {
		app.sendErrorResponse(w, "InvalidAttributeName", "invalid value for VisibilityTimeout: "+err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now()
	queue := &models.Queue{
		Name:              req.QueueName,
		VisibilityTimeout: visibilityTimeout,
		Created:           now,
		LastModified:      now,
	}
	if err := app.Store.CreateQueue(r.Context(), queue); err != nil {
		if errors.Is(err, store.ErrQueueAlreadyExists) {
			app.sendErrorResponse(w, "QueueAlreadyExists", "Queue already exists", http.StatusConflict)
			return
		}
		app.Logger.Error("create queue failed", "queue", req.QueueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to create queue", http.StatusInternalServerError)
		return
	}

	resp := models.CreateQueueResponse{
		QueueURL: queueURL(r, req.QueueName),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// DeleteQueueHandler handles requests to delete an existing queue. The store
// cascades the delete to every message the queue owns.
func (app *App) DeleteQueueHandler(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}

	err := app.Store.DeleteQueue(r.Context(), queueNameFromURL(req.QueueUrl))
	if err != nil {
		if errors.Is(err, store.ErrQueueDoesNotExist) {
			app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
			return
		}
		app.Logger.Error("delete queue failed", "queue", queueNameFromURL(req.QueueUrl), "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to delete queue", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListQueuesHandler handles requests to list all queues, in creation order.
func (app *App) ListQueuesHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ListQueuesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// An empty body is acceptable; proceed with default values.
	}

	queues, err := app.Store.ListQueues(r.Context())
	if err != nil {
		app.Logger.Error("list queues failed", "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to list queues", http.StatusInternalServerError)
		return
	}

	queueURLs := make([]string, 0, len(queues))
	for _, q := range queues {
		if req.QueueNamePrefix != "" && !strings.HasPrefix(q.Name, req.QueueNamePrefix) {
			continue
		}
		queueURLs = append(queueURLs, queueURL(r, q.Name))
	}

	resp := models.ListQueuesResponse{
		QueueUrls: queueURLs,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetQueueUrlHandler resolves a queue name to its URL.
func (app *App) GetQueueUrlHandler(w http.ResponseWriter, r *http.Request) {
	var req models.GetQueueURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueName == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueName.", http.StatusBadRequest)
		return
	}

	queue, err := app.Store.GetQueue(r.Context(), req.QueueName)
	if err != nil {
		app.Logger.Error("get queue failed", "queue", req.QueueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to look up queue", http.StatusInternalServerError)
		return
	}
	if queue == nil {
		app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
		return
	}

	resp := models.GetQueueURLResponse{QueueUrl: queueURL(r, queue.Name)}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetQueueAttributesHandler returns the queue's configuration plus its
// approximate message counters. The counters come from the store's
// statistics scan against the current wall clock.
func (app *App) GetQueueAttributesHandler(w http.ResponseWriter, r *http.Request) {
	var req models.GetQueueAttributesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	queueName := queueNameFromURL(req.QueueUrl)

	queue, err := app.Store.GetQueue(r.Context(), queueName)
	if err != nil {
		app.Logger.Error("get queue failed", "queue", queueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to look up queue", http.StatusInternalServerError)
		return
	}
	if queue == nil {
		app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
		return
	}

	stats, err := app.Store.QueueStats(r.Context(), queueName, time.Now().UnixMilli())
	if err != nil {
		app.Logger.Error("queue stats failed", "queue", queueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to compute queue statistics", http.StatusInternalServerError)
		return
	}

	all := map[string]string{
		"VisibilityTimeout":                     strconv.Itoa(int(queue.VisibilityTimeout / time.Second)),
		"CreatedTimestamp":                      strconv.FormatInt(queue.Created.Unix(), 10),
		"LastModifiedTimestamp":                 strconv.FormatInt(queue.LastModified.Unix(), 10),
		"ApproximateNumberOfMessages":           strconv.Itoa(stats.Visible),
		"ApproximateNumberOfMessagesNotVisible": strconv.Itoa(stats.Invisible),
	}

	attrs := all
	if len(req.AttributeNames) > 0 && !containsAll(req.AttributeNames) {
		attrs = make(map[string]string)
		for _, name := range req.AttributeNames {
			if v, ok := all[name]; ok {
				attrs[name] = v
			}
		}
	}

	resp := models.GetQueueAttributesResponse{Attributes: attrs}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func containsAll(names []string) bool {
	for _, n := range names {
		if n == "All" {
			return true
		}
	}
	return false
}

// SetQueueAttributesHandler updates the queue's visibility timeout and bumps
// its last-modified timestamp.
func (app *App) SetQueueAttributesHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SetQueueAttributesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	queueName := queueNameFromURL(req.QueueUrl)

	queue, err := app.Store.GetQueue(r.Context(), queueName)
	if err != nil {
		app.Logger.Error("get queue failed", "queue", queueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to look up queue", http.StatusInternalServerError)
		return
	}
	if queue == nil {
		app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
		return
	}

	if _, ok := req.Attributes["VisibilityTimeout"]; ok {
		visibilityTimeout, err := visibilityTimeoutFromAttributes(req.Attributes)
		if err != nil {
			app.sendErrorResponse(w, "InvalidAttributeName", "invalid value for VisibilityTimeout: "+err.Error(), http.StatusBadRequest)
			return
		}
		queue.VisibilityTimeout = visibilityTimeout
	}
	queue.LastModified = time.Now()

	if err := app.Store.UpdateQueue(r.Context(), queue); err != nil {
		if errors.Is(err, store.ErrQueueDoesNotExist) {
			app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
			return
		}
		app.Logger.Error("update queue failed", "queue", queueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to update queue", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// --- Message Management Handlers ---

// buildMessage validates a message payload and assembles the internal record,
// returning a protocol error code and message when validation fails.
func (app *App) buildMessage(queueName, body string, delaySeconds *int32, attributes map[string]models.MessageAttributeValue) (*models.Message, string, string) {
	if len(body) < 1 || len(body) > models.MaxMessageBodyLength {
		return nil, "InvalidParameterValue", fmt.Sprintf("The message body must be between 1 and %d bytes long.", models.MaxMessageBodyLength)
	}
	delay := int32(0)
	if delaySeconds != nil {
		if *delaySeconds < 0 || *delaySeconds > 900 {
			return nil, "InvalidParameterValue", "Value for parameter DelaySeconds is invalid. Reason: Must be an integer from 0 to 900."
		}
		delay = *delaySeconds
	}
	if err := app.validateMessageAttributes(attributes); err != nil {
		return nil, "InvalidParameterValue", err.Error()
	}

	now := time.Now()
	return &models.Message{
		ID:           newMessageID(),
		Queue:        queueName,
		Body:         body,
		Attributes:   attributes,
		NextDelivery: now.UnixMilli() + int64(delay)*1000,
		Created:      now,
	}, "", ""
}

// messageDigests computes the response digests for a message.
func messageDigests(m *models.Message) (string, *string, error) {
	bodyMD5 := digest.Body(m.Body)
	if len(m.Attributes) == 0 {
		return bodyMD5, nil, nil
	}
	attrMD5, err := digest.Attributes(m.Attributes)
	if err != nil {
		return "", nil, err
	}
	return bodyMD5, &attrMD5, nil
}

// SendMessageHandler handles requests to send a single message to a queue.
// The response carries the body and attribute digests so the client SDK can
// verify the payload arrived intact.
func (app *App) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	queueName := queueNameFromURL(req.QueueUrl)

	message, code, errMsg := app.buildMessage(queueName, req.MessageBody, req.DelaySeconds, req.MessageAttributes)
	if code != "" {
		app.sendErrorResponse(w, code, errMsg, http.StatusBadRequest)
		return
	}

	bodyMD5, attrMD5, err := messageDigests(message)
	if err != nil {
		app.sendErrorResponse(w, "InvalidParameterValue", err.Error(), http.StatusBadRequest)
		return
	}

	if err := app.Store.SendMessage(r.Context(), message); err != nil {
		if errors.Is(err, store.ErrQueueDoesNotExist) {
			app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
			return
		}
		app.Logger.Error("send message failed", "queue", queueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to send message", http.StatusInternalServerError)
		return
	}

	resp := models.SendMessageResponse{
		MessageId:              message.ID,
		MD5OfMessageBody:       bodyMD5,
		MD5OfMessageAttributes: attrMD5,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// validateBatchEntries enforces the batch envelope rules shared by all batch
// actions: between 1 and 10 entries with distinct IDs.
func validateBatchEntries(ids []string) (string, string) {
	if len(ids) == 0 {
		return "EmptyBatchRequest", "The batch request doesn't contain any entries."
	}
	if len(ids) > 10 {
		return "TooManyEntriesInBatchRequest", "The batch request contains more entries than permissible."
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, exists := seen[id]; exists {
			return "BatchEntryIdsNotDistinct", "Two or more batch entries in the request have the same Id."
		}
		seen[id] = struct{}{}
	}
	return "", ""
}

// SendMessageBatchHandler sends up to 10 messages in a single call. Entries
// are processed independently: one bad entry lands in the Failed list and
// never aborts its siblings.
func (app *App) SendMessageBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	ids := make([]string, len(req.Entries))
	for i, e := range req.Entries {
		ids[i] = e.Id
	}
	if code, msg := validateBatchEntries(ids); code != "" {
		app.sendErrorResponse(w, code, msg, http.StatusBadRequest)
		return
	}
	queueName := queueNameFromURL(req.QueueUrl)

	resp := models.SendMessageBatchResponse{
		Successful: []models.SendMessageBatchResultEntry{},
		Failed:     []models.BatchResultErrorEntry{},
	}
	for _, entry := range req.Entries {
		message, code, errMsg := app.buildMessage(queueName, entry.MessageBody, entry.DelaySeconds, entry.MessageAttributes)
		if code != "" {
			resp.Failed = append(resp.Failed, models.BatchResultErrorEntry{Id: entry.Id, Code: code, Message: errMsg, SenderFault: true})
			continue
		}
		bodyMD5, attrMD5, err := messageDigests(message)
		if err != nil {
			resp.Failed = append(resp.Failed, models.BatchResultErrorEntry{Id: entry.Id, Code: "InvalidParameterValue", Message: err.Error(), SenderFault: true})
			continue
		}
		if err := app.Store.SendMessage(r.Context(), message); err != nil {
			if errors.Is(err, store.ErrQueueDoesNotExist) {
				app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
				return
			}
			app.Logger.Error("batch send entry failed", "queue", queueName, "entry", entry.Id, "error", err)
			resp.Failed = append(resp.Failed, models.BatchResultErrorEntry{Id: entry.Id, Code: "InternalFailure", Message: "Failed to send message", SenderFault: false})
			continue
		}
		resp.Successful = append(resp.Successful, models.SendMessageBatchResultEntry{
			Id:                     entry.Id,
			MessageId:              message.ID,
			MD5OfMessageBody:       bodyMD5,
			MD5OfMessageAttributes: attrMD5,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// ReceiveMessageHandler retrieves messages from a queue. Long polling is a
// retry loop over the store's single-message claim, bounded by
// WaitTimeSeconds and the request context; the store itself never blocks.
func (app *App) ReceiveMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ReceiveMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	queueName := queueNameFromURL(req.QueueUrl)

	maxMessages := req.MaxNumberOfMessages
	if maxMessages == 0 {
		maxMessages = 1
	}
	if maxMessages < 1 || maxMessages > 10 {
		app.sendErrorResponse(w, "InvalidParameterValue", "Value for parameter MaxNumberOfMessages is invalid. Reason: Must be an integer from 1 to 10.", http.StatusBadRequest)
		return
	}
	// Zero means the parameter was not provided; provided values go through
	// the configured limits mode.
	if req.WaitTimeSeconds != 0 {
		if err := limits.ValidateWaitTime(app.Limits, req.WaitTimeSeconds); err != nil {
			app.sendErrorResponse(w, "InvalidParameterValue", err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.VisibilityTimeout < 0 || req.VisibilityTimeout > 43200 {
		app.sendErrorResponse(w, "InvalidParameterValue", "Value for parameter VisibilityTimeout is invalid. Reason: Must be an integer from 0 to 43200.", http.StatusBadRequest)
		return
	}

	queue, err := app.Store.GetQueue(r.Context(), queueName)
	if err != nil {
		app.Logger.Error("get queue failed", "queue", queueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to look up queue", http.StatusInternalServerError)
		return
	}
	if queue == nil {
		app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
		return
	}

	visibilityTimeout := queue.VisibilityTimeout
	if req.VisibilityTimeout > 0 {
		visibilityTimeout = time.Duration(req.VisibilityTimeout) * time.Second
	}

	received, err := app.pollMessages(r.Context(), queueName, maxMessages, req.WaitTimeSeconds, visibilityTimeout)
	if err != nil {
		if errors.Is(err, store.ErrQueueDoesNotExist) {
			app.sendErrorResponse(w, "QueueDoesNotExist", "The specified queue does not exist.", http.StatusBadRequest)
			return
		}
		app.Logger.Error("receive failed", "queue", queueName, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to receive messages", http.StatusInternalServerError)
		return
	}

	resp := models.ReceiveMessageResponse{Messages: []models.ResponseMessage{}}
	for _, m := range received {
		bodyMD5, attrMD5, err := messageDigests(m)
		if err != nil {
			app.Logger.Error("digest failed", "message", m.ID, "error", err)
			app.sendErrorResponse(w, "InternalFailure", "Failed to compute message digest", http.StatusInternalServerError)
			return
		}
		resp.Messages = append(resp.Messages, models.ResponseMessage{
			MessageId:              m.ID,
			ReceiptHandle:          m.ID,
			Body:                   m.Body,
			MD5OfBody:              bodyMD5,
			MD5OfMessageAttributes: attrMD5,
			MessageAttributes:      m.Attributes,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// pollMessages claims up to maxMessages eligible messages, retrying until the
// long-poll deadline passes or the request is cancelled. Each claim hides the
// message until now + visibilityTimeout.
func (app *App) pollMessages(ctx context.Context, queueName string, maxMessages, waitTimeSeconds int, visibilityTimeout time.Duration) ([]*models.Message, error) {
	deadline := time.Now().Add(time.Duration(waitTimeSeconds) * time.Second)

	var received []*models.Message
	for {
		for len(received) < maxMessages {
			now := time.Now().UnixMilli()
			m, err := app.Store.ReceiveMessage(ctx, queueName, now, now+visibilityTimeout.Milliseconds())
			if err != nil {
				return nil, err
			}
			if m == nil {
				break
			}
			received = append(received, m)
		}
		if len(received) > 0 || !time.Now().Before(deadline) {
			return received, nil
		}
		select {
		case <-ctx.Done():
			return received, nil
		case <-time.After(longPollInterval):
		}
	}
}

// DeleteMessageHandler deletes a single message by its receipt handle, which
// in this service is the message's global ID.
func (app *App) DeleteMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	if req.ReceiptHandle == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a ReceiptHandle.", http.StatusBadRequest)
		return
	}

	if err := app.Store.DeleteMessage(r.Context(), req.ReceiptHandle); err != nil {
		if errors.Is(err, store.ErrMessageDoesNotExist) {
			app.sendErrorResponse(w, "ReceiptHandleIsInvalid", "The specified receipt handle isn't valid.", http.StatusBadRequest)
			return
		}
		app.Logger.Error("delete message failed", "id", req.ReceiptHandle, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to delete message", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteMessageBatchHandler deletes up to 10 messages in a single call, with
// per-entry success/failure reporting.
func (app *App) DeleteMessageBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteMessageBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	ids := make([]string, len(req.Entries))
	for i, e := range req.Entries {
		ids[i] = e.Id
	}
	if code, msg := validateBatchEntries(ids); code != "" {
		app.sendErrorResponse(w, code, msg, http.StatusBadRequest)
		return
	}

	resp := models.DeleteMessageBatchResponse{
		Successful: []models.DeleteMessageBatchResultEntry{},
		Failed:     []models.BatchResultErrorEntry{},
	}
	for _, entry := range req.Entries {
		if err := app.Store.DeleteMessage(r.Context(), entry.ReceiptHandle); err != nil {
			code, senderFault := "InternalFailure", false
			if errors.Is(err, store.ErrMessageDoesNotExist) {
				code, senderFault = "ReceiptHandleIsInvalid", true
			} else {
				app.Logger.Error("batch delete entry failed", "entry", entry.Id, "error", err)
			}
			resp.Failed = append(resp.Failed, models.BatchResultErrorEntry{Id: entry.Id, Code: code, Message: err.Error(), SenderFault: senderFault})
			continue
		}
		resp.Successful = append(resp.Successful, models.DeleteMessageBatchResultEntry{Id: entry.Id})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// changeVisibility moves a message's next-delivery time to now + timeout.
// Used by both the single and the batch visibility handlers.
func (app *App) changeVisibility(ctx context.Context, receiptHandle string, visibilityTimeout int) error {
	m, err := app.Store.GetMessage(ctx, receiptHandle)
	if err != nil {
		return err
	}
	if m == nil {
		return store.ErrMessageDoesNotExist
	}
	m.NextDelivery = time.Now().UnixMilli() + int64(visibilityTimeout)*1000
	return app.Store.UpdateMessage(ctx, m)
}

// ChangeMessageVisibilityHandler resets the visibility window of a single
// message.
func (app *App) ChangeMessageVisibilityHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeMessageVisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	if req.ReceiptHandle == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a ReceiptHandle.", http.StatusBadRequest)
		return
	}
	if req.VisibilityTimeout < 0 || req.VisibilityTimeout > 43200 {
		app.sendErrorResponse(w, "InvalidParameterValue", "Value for parameter VisibilityTimeout is invalid. Reason: Must be an integer from 0 to 43200.", http.StatusBadRequest)
		return
	}

	if err := app.changeVisibility(r.Context(), req.ReceiptHandle, req.VisibilityTimeout); err != nil {
		if errors.Is(err, store.ErrMessageDoesNotExist) {
			app.sendErrorResponse(w, "ReceiptHandleIsInvalid", "The specified receipt handle isn't valid.", http.StatusBadRequest)
			return
		}
		app.Logger.Error("change visibility failed", "id", req.ReceiptHandle, "error", err)
		app.sendErrorResponse(w, "InternalFailure", "Failed to change message visibility", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ChangeMessageVisibilityBatchHandler resets the visibility window of up to
// 10 messages, with per-entry success/failure reporting.
func (app *App) ChangeMessageVisibilityBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeMessageVisibilityBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		app.sendErrorResponse(w, "InvalidRequest", "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.QueueUrl == "" {
		app.sendErrorResponse(w, "MissingParameter", "The request must contain a QueueUrl.", http.StatusBadRequest)
		return
	}
	ids := make([]string, len(req.Entries))
	for i, e := range req.Entries {
		ids[i] = e.Id
	}
	if code, msg := validateBatchEntries(ids); code != "" {
		app.sendErrorResponse(w, code, msg, http.StatusBadRequest)
		return
	}

	resp := models.ChangeMessageVisibilityBatchResponse{
		Successful: []models.ChangeMessageVisibilityBatchResultEntry{},
		Failed:     []models.BatchResultErrorEntry{},
	}
	for _, entry := range req.Entries {
		if entry.VisibilityTimeout < 0 || entry.VisibilityTimeout > 43200 {
			resp.Failed = append(resp.Failed, models.BatchResultErrorEntry{
				Id: entry.Id, Code: "InvalidParameterValue",
				Message:     "Value for parameter VisibilityTimeout is invalid. Reason: Must be an integer from 0 to 43200.",
				SenderFault: true,
			})
			continue
		}
		if err := app.changeVisibility(r.Context(), entry.ReceiptHandle, entry.VisibilityTimeout); err != nil {
			code, senderFault := "InternalFailure", false
			if errors.Is(err, store.ErrMessageDoesNotExist) {
				code, senderFault = "ReceiptHandleIsInvalid", true
			} else {
				app.Logger.Error("batch visibility entry failed", "entry", entry.Id, "error", err)
			}
			resp.Failed = append(resp.Failed, models.BatchResultErrorEntry{Id: entry.Id, Code: code, Message: err.Error(), SenderFault: senderFault})
			continue
		}
		resp.Successful = append(resp.Successful, models.ChangeMessageVisibilityBatchResultEntry{Id: entry.Id})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
