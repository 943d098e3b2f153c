package queue

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/tabeth/sqstreams/config"
)

// API is the subset of the SQS client used by Queue. *sqs.SQS satisfies it.
type API interface {
	GetQueueUrlWithContext(ctx aws.Context, input *sqs.GetQueueUrlInput, opts ...request.Option) (*sqs.GetQueueUrlOutput, error)
	CreateQueueWithContext(ctx aws.Context, input *sqs.CreateQueueInput, opts ...request.Option) (*sqs.CreateQueueOutput, error)
	SendMessageWithContext(ctx aws.Context, input *sqs.SendMessageInput, opts ...request.Option) (*sqs.SendMessageOutput, error)
	ReceiveMessageWithContext(ctx aws.Context, input *sqs.ReceiveMessageInput, opts ...request.Option) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatchWithContext(ctx aws.Context, input *sqs.DeleteMessageBatchInput, opts ...request.Option) (*sqs.DeleteMessageBatchOutput, error)
	DeleteQueueWithContext(ctx aws.Context, input *sqs.DeleteQueueInput, opts ...request.Option) (*sqs.DeleteQueueOutput, error)
}

var _ API = (*sqs.SQS)(nil)

// localRegion is the signing region used for local endpoints, which do not
// care about it.
const localRegion = "us-east-1"

// NewClient builds an SQS client for conn.
//
//   - Service is a URL: a local instance, reached with dummy static
//     credentials.
//   - AccessKey and SecretKey are set: AWS in region Service with those keys.
//   - Otherwise: AWS in region Service with the default credential chain
//     (environment, shared config, instance role).
func NewClient(conn config.Connection) (*sqs.SQS, error) {
	if conn.Service == "" {
		return nil, fmt.Errorf("%w: connection string must set Service", ErrInvalidArgument)
	}

	cfg := aws.NewConfig()
	switch {
	case conn.IsLocal():
		cfg = cfg.WithEndpoint(conn.Service).
			WithRegion(localRegion).
			WithCredentials(credentials.NewStaticCredentials("dummy", "dummyKey", ""))
	case conn.HasStaticCredentials():
		cfg = cfg.WithRegion(conn.Service).
			WithCredentials(credentials.NewStaticCredentials(conn.AccessKey, conn.SecretKey, ""))
	default:
		cfg = cfg.WithRegion(conn.Service)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return sqs.New(sess), nil
}
