package streams

import (
	"fmt"
	"strings"
)

// QueueID identifies one of the physical queues streams are mapped onto.
type QueueID struct {
	Prefix string
	Index  int
}

// String returns the logical queue name, "<prefix>-<index>".
func (id QueueID) String() string {
	return fmt.Sprintf("%s-%d", strings.ToLower(id.Prefix), id.Index)
}

// Direction describes which side of a stream a provider supports.
type Direction int

const (
	ReadOnly Direction = iota + 1
	WriteOnly
	ReadWrite
)

func (d Direction) String() string {
	switch d {
	case ReadOnly:
		return "ReadOnly"
	case WriteOnly:
		return "WriteOnly"
	case ReadWrite:
		return "ReadWrite"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// SequenceToken is a position in a stream.
type SequenceToken interface {
	Sequence() int64
}

// EventSequenceToken is assigned to batches as a Receiver reads them.
type EventSequenceToken struct {
	SequenceNumber int64
	EventIndex     int
}

func (t EventSequenceToken) Sequence() int64 { return t.SequenceNumber }

func (t EventSequenceToken) String() string {
	return fmt.Sprintf("[EventSequenceToken: SeqNum=%d, EventIndex=%d]", t.SequenceNumber, t.EventIndex)
}
