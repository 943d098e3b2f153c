// Package config holds the settings consumed by the SQS stream transport: the
// provider Options, connection string parsing, and the environment-driven
// Config used by the sqstreams binary.
package config

import (
	"fmt"

	"github.com/tabeth/sqstreams/dedup"
)

// DefaultFifoMessageGroupID is the MessageGroupId used for FIFO queues when
// none is configured.
const DefaultFifoMessageGroupID = "0"

// Options configures how queues are created and how messages are sent to
// them.
type Options struct {
	// ConnectionString has the format
	// "Service=<service>;AccessKey=<accessKey>;SecretKey=<secretKey>".
	// <service> is an AWS region (e.g. us-west-1) or an http(s) URL for a
	// local SQS implementation. Prefer IAM roles over explicit keys on AWS.
	ConnectionString string

	// QueueAttributes are applied when a queue is created. Adding the
	// "FifoQueue" key makes queues FIFO; adding "ContentBasedDeduplication"
	// turns on content-based deduplication for them.
	QueueAttributes map[string]string

	// QueueTags are applied when a queue is created.
	QueueTags map[string]string

	// FifoMessageGroupID is the MessageGroupId for every message sent to a
	// FIFO queue. A producer-specific constant spreads load across groups.
	FifoMessageGroupID string

	// FifoMessageDeduplicationIDGenerator supplies MessageDeduplicationId for
	// FIFO queues without content-based deduplication and must return a
	// unique value per call. Leave it nil when ContentBasedDeduplication is
	// set.
	FifoMessageDeduplicationIDGenerator dedup.Generator
}

// DefaultOptions returns Options with the default group id and
// deduplication id generator. ConnectionString is left empty.
func DefaultOptions() *Options {
	return &Options{
		QueueAttributes:                     map[string]string{},
		QueueTags:                           map[string]string{},
		FifoMessageGroupID:                  DefaultFifoMessageGroupID,
		FifoMessageDeduplicationIDGenerator: dedup.Next,
	}
}

// String implements fmt.Stringer and keeps credentials out of logs.
func (o *Options) String() string {
	if o == nil {
		return "<nil>"
	}
	conn := ""
	if o.ConnectionString != "" {
		conn = "<redacted>"
	}
	return fmt.Sprintf("Options{ConnectionString:%s QueueAttributes:%v QueueTags:%v FifoMessageGroupID:%q}",
		conn, o.QueueAttributes, o.QueueTags, o.FifoMessageGroupID)
}
