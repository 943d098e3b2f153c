package streams

import (
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/tabeth/sqstreams/queue"
)

// DefaultQueueCount is the number of queues a provider spreads streams over
// when not configured.
const DefaultQueueCount = 8

// Mapper assigns streams to queues. QueueForStream must be deterministic.
type Mapper interface {
	QueueForStream(streamID uuid.UUID, namespace string) QueueID
	AllQueues() []QueueID
}

// HashRingMapper splits the 32-bit hash space into count equal ranges, one
// per queue.
type HashRingMapper struct {
	prefix string
	count  int
}

var _ Mapper = (*HashRingMapper)(nil)

// NewHashRingMapper returns a mapper over count queues named after prefix.
func NewHashRingMapper(prefix string, count int) (*HashRingMapper, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: queue count must be at least 1, got %d", queue.ErrInvalidArgument, count)
	}
	if prefix == "" {
		return nil, fmt.Errorf("%w: queue name prefix is required", queue.ErrInvalidArgument)
	}
	return &HashRingMapper{prefix: prefix, count: count}, nil
}

func (m *HashRingMapper) QueueForStream(streamID uuid.UUID, namespace string) QueueID {
	h := fnv.New32a()
	h.Write([]byte(namespace))
	h.Write(streamID[:])
	idx := int((uint64(h.Sum32()) * uint64(m.count)) >> 32)
	return QueueID{Prefix: m.prefix, Index: idx}
}

func (m *HashRingMapper) AllQueues() []QueueID {
	ids := make([]QueueID, m.count)
	for i := range ids {
		ids[i] = QueueID{Prefix: m.prefix, Index: i}
	}
	return ids
}
