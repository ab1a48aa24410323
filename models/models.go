// Package models contains the data structures used throughout the application:
// the internal representation of queues and messages held by the storage
// backends, and the request/response shapes of the wire API. The wire structs
// follow the amz-json field naming so that off-the-shelf SQS clients can talk
// to the service without translation.
package models

import "time"

// MaxMessageBodyLength is the maximum accepted message body size in bytes.
// It is an externally visible contract constant and must not drift.
const MaxMessageBodyLength = 65535

// Queue is the internal representation of a queue. Name is the identity key
// and never changes after creation. VisibilityTimeout is the default hold
// duration receivers apply when computing a message's next delivery time; the
// storage layer stores and returns it but never interprets it.
type Queue struct {
	Name              string
	VisibilityTimeout time.Duration
	Created           time.Time
	LastModified      time.Time
}

// MessageAttributeValue represents the value of a custom message attribute.
// DataType is "String", "Number" or "Binary", optionally with a custom label
// suffix (e.g. "Number.float"). String and Number values live in StringValue,
// Binary values in BinaryValue.
type MessageAttributeValue struct {
	// BinaryListValues is a list of binary values. Reserved by the protocol;
	// not digestable.
	BinaryListValues [][]byte `json:"BinaryListValues,omitempty"`
	// BinaryValue is a binary value.
	BinaryValue []byte `json:"BinaryValue,omitempty"`
	// DataType indicates the type of the attribute (e.g., "String", "Number", "Binary").
	DataType string `json:"DataType"`
	// StringListValues is a list of string values. Reserved by the protocol;
	// not digestable.
	StringListValues []string `json:"StringListValues,omitempty"`
	// StringValue is a string value.
	StringValue *string `json:"StringValue,omitempty"`
}

// Message is the internal representation of a message. ID is globally unique
// across all queues, so lookups and deletes take only the ID. Queue is the
// name of the owning queue; a message cannot outlive it. NextDelivery is the
// epoch-millisecond instant at which the message becomes eligible for
// delivery: the message is visible iff NextDelivery <= now. There is no
// separate in-flight flag.
type Message struct {
	ID           string
	Queue        string
	Body         string
	Attributes   map[string]MessageAttributeValue
	NextDelivery int64
	Created      time.Time
}

// CreateQueueRequest maps to the input of the SQS CreateQueue action.
type CreateQueueRequest struct {
	// QueueName is the name of the queue to be created.
	QueueName string `json:"QueueName"`
	// Attributes is a map of attributes for the queue (e.g., "VisibilityTimeout").
	Attributes map[string]string `json:"Attributes"`
}

// CreateQueueResponse maps to the output of a successful SQS CreateQueue action.
type CreateQueueResponse struct {
	// QueueURL is the URL of the created queue.
	QueueURL string `json:"QueueUrl"`
}

// ListQueuesRequest defines the parameters for the SQS ListQueues action.
type ListQueuesRequest struct {
	// QueueNamePrefix is an optional filter to list only queues starting with this prefix.
	QueueNamePrefix string `json:"QueueNamePrefix"`
}

// ListQueuesResponse defines the structure for the SQS ListQueues action's output.
type ListQueuesResponse struct {
	// QueueUrls is a list of URLs of the queues that match the request,
	// in queue creation order.
	QueueUrls []string `json:"QueueUrls"`
}

// GetQueueURLRequest defines the parameters for the SQS GetQueueUrl action.
type GetQueueURLRequest struct {
	// QueueName is the name of the queue.
	QueueName string `json:"QueueName"`
}

// GetQueueURLResponse defines the structure for the SQS GetQueueUrl action's output.
type GetQueueURLResponse struct {
	// QueueUrl is the URL of the queue.
	QueueUrl string `json:"QueueUrl"`
}

// GetQueueAttributesRequest defines the parameters for the SQS GetQueueAttributes action.
type GetQueueAttributesRequest struct {
	// QueueUrl is the URL of the queue to retrieve attributes for.
	QueueUrl string `json:"QueueUrl"`
	// AttributeNames is a list of attributes to retrieve (e.g., "All", "VisibilityTimeout").
	AttributeNames []string `json:"AttributeNames"`
}

// GetQueueAttributesResponse defines the structure for the SQS GetQueueAttributes action's output.
type GetQueueAttributesResponse struct {
	// Attributes is a map of the requested queue attributes.
	Attributes map[string]string `json:"Attributes"`
}

// SetQueueAttributesRequest defines the parameters for the SQS SetQueueAttributes action.
type SetQueueAttributesRequest struct {
	// QueueUrl is the URL of the queue.
	QueueUrl string `json:"QueueUrl"`
	// Attributes is a map of attributes to set.
	Attributes map[string]string `json:"Attributes"`
}

// DeleteQueueRequest defines the parameters for the SQS DeleteQueue action.
type DeleteQueueRequest struct {
	// QueueUrl is the URL of the queue to delete.
	QueueUrl string `json:"QueueUrl"`
}

// SendMessageRequest maps to the input of the SQS SendMessage action.
type SendMessageRequest struct {
	// DelaySeconds is the number of seconds to delay the message.
	DelaySeconds *int32 `json:"DelaySeconds,omitempty"`
	// MessageAttributes is a map of custom attributes for the message.
	MessageAttributes map[string]MessageAttributeValue `json:"MessageAttributes,omitempty"`
	// MessageBody is the body of the message.
	MessageBody string `json:"MessageBody"`
	// QueueUrl is the URL of the queue to send the message to.
	QueueUrl string `json:"QueueUrl"`
}

// SendMessageResponse maps to the output of a successful SQS SendMessage action.
// The MD5 digests let clients verify that the service received the payload
// uncorrupted.
type SendMessageResponse struct {
	// MD5OfMessageAttributes is the MD5 digest of the message attributes.
	MD5OfMessageAttributes *string `json:"MD5OfMessageAttributes,omitempty"`
	// MD5OfMessageBody is the MD5 digest of the message body.
	MD5OfMessageBody string `json:"MD5OfMessageBody"`
	// MessageId is the unique identifier for the sent message.
	MessageId string `json:"MessageId"`
}

// ReceiveMessageRequest maps to the input of the SQS ReceiveMessage action.
type ReceiveMessageRequest struct {
	// MaxNumberOfMessages is the maximum number of messages to return (1-10).
	MaxNumberOfMessages int `json:"MaxNumberOfMessages"`
	// QueueUrl is the URL of the queue to receive messages from.
	QueueUrl string `json:"QueueUrl"`
	// VisibilityTimeout is the duration (in seconds) that received messages
	// are hidden from subsequent receive requests. Zero means the queue default.
	VisibilityTimeout int `json:"VisibilityTimeout"`
	// WaitTimeSeconds is the long-poll duration the call waits for a message
	// to arrive before returning an empty result.
	WaitTimeSeconds int `json:"WaitTimeSeconds"`
}

// ReceiveMessageResponse defines the structure for the SQS ReceiveMessage action's output.
type ReceiveMessageResponse struct {
	// Messages is the list of messages received.
	Messages []ResponseMessage `json:"Messages"`
}

// ResponseMessage represents a single message as returned to the client from
// a ReceiveMessage call. The receipt handle is the message's global ID.
type ResponseMessage struct {
	// Body is the body of the message.
	Body string `json:"Body"`
	// MD5OfBody is the MD5 digest of the message body.
	MD5OfBody string `json:"MD5OfBody"`
	// MD5OfMessageAttributes is the MD5 digest of the message attributes.
	MD5OfMessageAttributes *string `json:"MD5OfMessageAttributes,omitempty"`
	// MessageAttributes is a map of the custom message attributes.
	MessageAttributes map[string]MessageAttributeValue `json:"MessageAttributes,omitempty"`
	// MessageId is the unique identifier of the message.
	MessageId string `json:"MessageId"`
	// ReceiptHandle is the token used to delete or change the visibility of the message.
	ReceiptHandle string `json:"ReceiptHandle"`
}

// DeleteMessageRequest defines the parameters for the SQS DeleteMessage action.
type DeleteMessageRequest struct {
	// QueueUrl is the URL of the queue.
	QueueUrl string `json:"QueueUrl"`
	// ReceiptHandle is the handle associated with the message to delete.
	ReceiptHandle string `json:"ReceiptHandle"`
}

// ChangeMessageVisibilityRequest defines the parameters for the SQS ChangeMessageVisibility action.
type ChangeMessageVisibilityRequest struct {
	// QueueUrl is the URL of the queue.
	QueueUrl string `json:"QueueUrl"`
	// ReceiptHandle is the handle associated with the message.
	ReceiptHandle string `json:"ReceiptHandle"`
	// VisibilityTimeout is the new value for the message's visibility timeout (in seconds).
	VisibilityTimeout int `json:"VisibilityTimeout"`
}

// ErrorResponse defines the standard AWS JSON error response format.
type ErrorResponse struct {
	// Type is the error code (e.g., "InvalidParameterValue").
	Type string `json:"__type"`
	// Message is the descriptive error message.
	Message string `json:"message"`
}

// --- Batch Operation Models ---

// SendMessageBatchRequest defines the parameters for the SQS SendMessageBatch action.
type SendMessageBatchRequest struct {
	// QueueUrl is the URL of the queue.
	QueueUrl string `json:"QueueUrl"`
	// Entries is a list of SendMessageBatchRequestEntry items.
	Entries []SendMessageBatchRequestEntry `json:"Entries"`
}

// SendMessageBatchRequestEntry defines a single message within a batch send request.
type SendMessageBatchRequestEntry struct {
	// Id is a unique identifier for the entry within the batch.
	Id string `json:"Id"`
	// MessageBody is the body of the message.
	MessageBody string `json:"MessageBody"`
	// DelaySeconds is the number of seconds to delay the message.
	DelaySeconds *int32 `json:"DelaySeconds,omitempty"`
	// MessageAttributes is a map of custom attributes for the message.
	MessageAttributes map[string]MessageAttributeValue `json:"MessageAttributes,omitempty"`
}

// SendMessageBatchResponse defines the structure for the SQS SendMessageBatch action's output.
// Results are split into successful and failed entries; one bad entry never
// fails the whole batch.
type SendMessageBatchResponse struct {
	// Successful is a list of entries that were successfully sent.
	Successful []SendMessageBatchResultEntry `json:"Successful"`
	// Failed is a list of entries that failed to be sent.
	Failed []BatchResultErrorEntry `json:"Failed"`
}

// SendMessageBatchResultEntry contains the details of a successfully sent message in a batch.
type SendMessageBatchResultEntry struct {
	// Id is the identifier of the message in the batch request.
	Id string `json:"Id"`
	// MessageId is the unique identifier assigned to the message.
	MessageId string `json:"MessageId"`
	// MD5OfMessageBody is the MD5 digest of the message body.
	MD5OfMessageBody string `json:"MD5OfMessageBody"`
	// MD5OfMessageAttributes is the MD5 digest of the message attributes.
	MD5OfMessageAttributes *string `json:"MD5OfMessageAttributes,omitempty"`
}

// BatchResultErrorEntry contains the details of a failed entry in a batch operation.
type BatchResultErrorEntry struct {
	// Id is the identifier of the entry in the batch request.
	Id string `json:"Id"`
	// Code is the error code.
	Code string `json:"Code"`
	// Message is a description of the error.
	Message string `json:"Message"`
	// SenderFault indicates whether the error was due to the sender's request.
	SenderFault bool `json:"SenderFault"`
}

// DeleteMessageBatchRequest defines the parameters for the SQS DeleteMessageBatch action.
type DeleteMessageBatchRequest struct {
	// QueueUrl is the URL of the queue.
	QueueUrl string `json:"QueueUrl"`
	// Entries is a list of DeleteMessageBatchRequestEntry items.
	Entries []DeleteMessageBatchRequestEntry `json:"Entries"`
}

// DeleteMessageBatchRequestEntry defines a single message to be deleted in a batch.
type DeleteMessageBatchRequestEntry struct {
	// Id is a unique identifier for the entry within the batch.
	Id string `json:"Id"`
	// ReceiptHandle is the handle associated with the message to delete.
	ReceiptHandle string `json:"ReceiptHandle"`
}

// DeleteMessageBatchResponse defines the structure for the SQS DeleteMessageBatch action's output.
type DeleteMessageBatchResponse struct {
	// Successful is a list of entries that were successfully deleted.
	Successful []DeleteMessageBatchResultEntry `json:"Successful"`
	// Failed is a list of entries that failed to be deleted.
	Failed []BatchResultErrorEntry `json:"Failed"`
}

// DeleteMessageBatchResultEntry contains the ID of a successfully deleted message in a batch.
type DeleteMessageBatchResultEntry struct {
	// Id is the identifier of the message in the batch request.
	Id string `json:"Id"`
}

// ChangeMessageVisibilityBatchRequest defines the parameters for the SQS ChangeMessageVisibilityBatch action.
type ChangeMessageVisibilityBatchRequest struct {
	// QueueUrl is the URL of the queue.
	QueueUrl string `json:"QueueUrl"`
	// Entries is a list of ChangeMessageVisibilityBatchRequestEntry items.
	Entries []ChangeMessageVisibilityBatchRequestEntry `json:"Entries"`
}

// ChangeMessageVisibilityBatchRequestEntry defines a single entry in a ChangeMessageVisibilityBatch request.
type ChangeMessageVisibilityBatchRequestEntry struct {
	// Id is a unique identifier for the entry within the batch.
	Id string `json:"Id"`
	// ReceiptHandle is the handle associated with the message.
	ReceiptHandle string `json:"ReceiptHandle"`
	// VisibilityTimeout is the new visibility timeout in seconds.
	VisibilityTimeout int `json:"VisibilityTimeout"`
}

// ChangeMessageVisibilityBatchResponse defines the structure for the SQS ChangeMessageVisibilityBatch action's output.
type ChangeMessageVisibilityBatchResponse struct {
	// Successful is a list of entries that were successfully processed.
	Successful []ChangeMessageVisibilityBatchResultEntry `json:"Successful"`
	// Failed is a list of entries that failed.
	Failed []BatchResultErrorEntry `json:"Failed"`
}

// ChangeMessageVisibilityBatchResultEntry contains the ID of a successfully changed message in a batch.
type ChangeMessageVisibilityBatchResultEntry struct {
	// Id is the identifier of the message in the batch request.
	Id string `json:"Id"`
}
