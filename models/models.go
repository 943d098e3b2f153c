// Package models holds the JSON request and response shapes of the SQS
// actions served by the emulator, and the message record kept by the store.
package models

// CreateQueueRequest is the input of CreateQueue.
type CreateQueueRequest struct {
	QueueName string `json:"QueueName"`
	// Attributes such as "FifoQueue" or "VisibilityTimeout".
	Attributes map[string]string `json:"Attributes"`
	Tags       map[string]string `json:"tags"`
}

// CreateQueueResponse is the output of CreateQueue.
type CreateQueueResponse struct {
	QueueURL string `json:"QueueUrl"`
}

// GetQueueURLRequest is the input of GetQueueUrl.
type GetQueueURLRequest struct {
	QueueName              string `json:"QueueName"`
	QueueOwnerAWSAccountId string `json:"QueueOwnerAWSAccountId,omitempty"`
}

// GetQueueURLResponse is the output of GetQueueUrl.
type GetQueueURLResponse struct {
	QueueUrl string `json:"QueueUrl"`
}

// DeleteQueueRequest is the input of DeleteQueue.
type DeleteQueueRequest struct {
	QueueUrl string `json:"QueueUrl"`
}

// PurgeQueueRequest is the input of PurgeQueue.
type PurgeQueueRequest struct {
	QueueUrl string `json:"QueueUrl"`
}

// ListQueuesRequest is the input of ListQueues. Results are paged by
// NextToken and may be filtered by name prefix.
type ListQueuesRequest struct {
	MaxResults      int    `json:"MaxResults"`
	NextToken       string `json:"NextToken"`
	QueueNamePrefix string `json:"QueueNamePrefix"`
}

// ListQueuesResponse is the output of ListQueues.
type ListQueuesResponse struct {
	QueueUrls []string `json:"QueueUrls"`
	NextToken string   `json:"NextToken,omitempty"`
}

// GetQueueAttributesRequest is the input of GetQueueAttributes.
type GetQueueAttributesRequest struct {
	QueueUrl       string   `json:"QueueUrl"`
	AttributeNames []string `json:"AttributeNames"`
}

// GetQueueAttributesResponse is the output of GetQueueAttributes.
type GetQueueAttributesResponse struct {
	Attributes map[string]string `json:"Attributes"`
}

// ListQueueTagsRequest is the input of ListQueueTags.
type ListQueueTagsRequest struct {
	QueueUrl string `json:"QueueUrl"`
}

// ListQueueTagsResponse is the output of ListQueueTags.
type ListQueueTagsResponse struct {
	Tags map[string]string `json:"Tags"`
}

// MessageAttributeValue is a custom message attribute.
type MessageAttributeValue struct {
	DataType    string  `json:"DataType"`
	StringValue *string `json:"StringValue,omitempty"`
	BinaryValue []byte  `json:"BinaryValue,omitempty"`
}

// SendMessageRequest is the input of SendMessage. MessageGroupId and
// MessageDeduplicationId only apply to FIFO queues.
type SendMessageRequest struct {
	QueueUrl    string `json:"QueueUrl"`
	MessageBody string `json:"MessageBody"`
	// DelaySeconds is 0-900 and rejected by FIFO queues.
	DelaySeconds           *int32                           `json:"DelaySeconds,omitempty"`
	MessageAttributes      map[string]MessageAttributeValue `json:"MessageAttributes,omitempty"`
	MessageDeduplicationId *string                          `json:"MessageDeduplicationId,omitempty"`
	MessageGroupId         *string                          `json:"MessageGroupId,omitempty"`
}

// SendMessageResponse is the output of SendMessage. MD5OfMessageBody is the
// hex MD5 digest of the body, which SDK clients verify.
type SendMessageResponse struct {
	MessageId        string  `json:"MessageId"`
	MD5OfMessageBody string  `json:"MD5OfMessageBody"`
	SequenceNumber   *string `json:"SequenceNumber,omitempty"`
}

// ReceiveMessageRequest is the input of ReceiveMessage. Zero values of
// VisibilityTimeout and WaitTimeSeconds fall back to the queue's attributes.
type ReceiveMessageRequest struct {
	QueueUrl string `json:"QueueUrl"`
	// AttributeNames selects system attributes to return, or "All".
	AttributeNames              []string `json:"AttributeNames"`
	MessageSystemAttributeNames []string `json:"MessageSystemAttributeNames"`
	MaxNumberOfMessages         int      `json:"MaxNumberOfMessages"`
	VisibilityTimeout           int      `json:"VisibilityTimeout"`
	WaitTimeSeconds             int      `json:"WaitTimeSeconds"`
}

// ReceiveMessageResponse is the output of ReceiveMessage.
type ReceiveMessageResponse struct {
	Messages []ResponseMessage `json:"Messages"`
}

// ResponseMessage is one received message. ReceiptHandle identifies this
// particular receipt and is what DeleteMessage takes.
type ResponseMessage struct {
	MessageId     string            `json:"MessageId"`
	ReceiptHandle string            `json:"ReceiptHandle"`
	Body          string            `json:"Body"`
	MD5OfBody     string            `json:"MD5OfBody"`
	Attributes    map[string]string `json:"Attributes,omitempty"`
}

// DeleteMessageRequest is the input of DeleteMessage.
type DeleteMessageRequest struct {
	QueueUrl      string `json:"QueueUrl"`
	ReceiptHandle string `json:"ReceiptHandle"`
}

// ChangeMessageVisibilityRequest is the input of ChangeMessageVisibility.
type ChangeMessageVisibilityRequest struct {
	QueueUrl          string `json:"QueueUrl"`
	ReceiptHandle     string `json:"ReceiptHandle"`
	VisibilityTimeout int    `json:"VisibilityTimeout"`
}

// DeleteMessageBatchRequest is the input of DeleteMessageBatch.
type DeleteMessageBatchRequest struct {
	QueueUrl string                           `json:"QueueUrl"`
	Entries  []DeleteMessageBatchRequestEntry `json:"Entries"`
}

// DeleteMessageBatchRequestEntry is one receipt to delete. Id is unique
// within the request and correlates the result.
type DeleteMessageBatchRequestEntry struct {
	Id            string `json:"Id"`
	ReceiptHandle string `json:"ReceiptHandle"`
}

// DeleteMessageBatchResponse is the output of DeleteMessageBatch.
type DeleteMessageBatchResponse struct {
	Successful []DeleteMessageBatchResultEntry `json:"Successful"`
	Failed     []BatchResultErrorEntry         `json:"Failed"`
}

// DeleteMessageBatchResultEntry names a deleted entry.
type DeleteMessageBatchResultEntry struct {
	Id string `json:"Id"`
}

// BatchResultErrorEntry describes an entry of a batch request that failed.
type BatchResultErrorEntry struct {
	Id          string `json:"Id"`
	Code        string `json:"Code"`
	Message     string `json:"Message"`
	SenderFault bool   `json:"SenderFault"`
}

// ErrorResponse is the AWS JSON protocol error body.
type ErrorResponse struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// Message is a stored message. It is never serialized to clients directly.
type Message struct {
	ID        string
	Body      string
	MD5OfBody string
	// VisibleAfter is the unix millisecond time the message can next be
	// received.
	VisibleAfter  int64
	ReceivedCount int
	FirstReceived int64
	SentTimestamp int64
	// ReceiptHandle is the handle of the latest receipt, "" before the first.
	ReceiptHandle string

	// FIFO only.
	MessageGroupId  string
	DeduplicationId string
	SequenceNumber  int64
}
