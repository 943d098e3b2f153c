package streams

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/google/uuid"
)

// Batch is the unit carried by one SQS message: a group of events for a
// single stream plus the producer's request context.
type Batch struct {
	StreamID       uuid.UUID      `json:"streamId"`
	Namespace      string         `json:"namespace"`
	Events         []any          `json:"events"`
	RequestContext map[string]any `json:"requestContext,omitempty"`

	// Token is set by the Receiver.
	Token *EventSequenceToken `json:"-"`

	message *sqs.Message
}

// Message returns the SQS message the batch was decoded from, or nil for a
// batch that was never received.
func (b *Batch) Message() *sqs.Message {
	return b.message
}

// Codec turns batches into SQS message bodies and back.
type Codec interface {
	Encode(b *Batch) (string, error)
	Decode(body string) (*Batch, error)
}

// JSONCodec encodes batches as JSON documents.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Encode(b *Batch) (string, error) {
	if b == nil {
		return "", errors.New("nil batch")
	}
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	return string(data), nil
}

func (JSONCodec) Decode(body string) (*Batch, error) {
	if body == "" {
		return nil, errors.New("decode batch: empty message body")
	}
	var b Batch
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return &b, nil
}
