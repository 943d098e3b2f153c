package store

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tabeth/sqstreams/models"
)

const (
	defaultVisibilityTimeout = 30
	maxMessagesPerReceive    = 10
	deduplicationInterval    = 5 * time.Minute
	purgeCooldown            = 60 * time.Second
	// pollInterval bounds how long a long poll misses messages that become
	// visible through time passing rather than a send.
	pollInterval = 250 * time.Millisecond
)

// MemoryStore keeps queues in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string]*memQueue
	now    func() time.Time
	logger *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for queue lifecycle events.
func WithLogger(l *slog.Logger) MemoryOption {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		queues: make(map[string]*memQueue),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type memQueue struct {
	attributes map[string]string
	tags       map[string]string
	createdAt  time.Time
	lastPurge  time.Time

	// messages are kept in send order.
	messages []*models.Message
	nextSeq  int64
	dedup    map[string]dedupEntry

	// notify is closed and replaced whenever the queue changes.
	notify chan struct{}
}

type dedupEntry struct {
	messageID string
	seq       int64
	at        time.Time
}

func (q *memQueue) fifo() bool         { return q.attributes["FifoQueue"] == "true" }
func (q *memQueue) contentDedup() bool { return q.attributes["ContentBasedDeduplication"] == "true" }

func (q *memQueue) intAttr(name string, def int) int {
	if v, err := strconv.Atoi(q.attributes[name]); err == nil {
		return v
	}
	return def
}

func (q *memQueue) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}

func (s *MemoryStore) queue(name string) (*memQueue, error) {
	q, ok := s.queues[name]
	if !ok {
		return nil, ErrQueueDoesNotExist
	}
	return q, nil
}

func (s *MemoryStore) CreateQueue(_ context.Context, name string, attributes map[string]string, tags map[string]string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q, ok := s.queues[name]; ok {
		return maps.Clone(q.attributes), nil
	}
	q := &memQueue{
		attributes: make(map[string]string, len(attributes)),
		tags:       make(map[string]string, len(tags)),
		createdAt:  s.now(),
		dedup:      make(map[string]dedupEntry),
		notify:     make(chan struct{}),
	}
	maps.Copy(q.attributes, attributes)
	maps.Copy(q.tags, tags)
	s.queues[name] = q
	s.logger.Info("queue created", "queue", name, "fifo", q.fifo())
	return nil, nil
}

func (s *MemoryStore) DeleteQueue(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.queue(name)
	if err != nil {
		return err
	}
	delete(s.queues, name)
	q.wake()
	s.logger.Info("queue deleted", "queue", name, "messages", len(q.messages))
	return nil
}

func (s *MemoryStore) ListQueues(_ context.Context, maxResults int, nextToken, queueNamePrefix string) ([]string, string, error) {
	s.mu.Lock()
	names := slices.Sorted(maps.Keys(s.queues))
	s.mu.Unlock()

	filtered := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, queueNamePrefix) && (nextToken == "" || n > nextToken) {
			filtered = append(filtered, n)
		}
	}
	if maxResults > 0 && len(filtered) > maxResults {
		page := filtered[:maxResults]
		return page, page[len(page)-1], nil
	}
	return filtered, "", nil
}

func (s *MemoryStore) GetQueueAttributes(_ context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.queue(name)
	if err != nil {
		return nil, err
	}
	attrs := map[string]string{
		"VisibilityTimeout":             strconv.Itoa(defaultVisibilityTimeout),
		"DelaySeconds":                  "0",
		"ReceiveMessageWaitTimeSeconds": "0",
	}
	maps.Copy(attrs, q.attributes)

	now := s.now().UnixMilli()
	var visible, inFlight, delayed int
	for _, m := range q.messages {
		switch {
		case m.VisibleAfter <= now:
			visible++
		case m.ReceivedCount == 0:
			delayed++
		default:
			inFlight++
		}
	}
	attrs["ApproximateNumberOfMessages"] = strconv.Itoa(visible)
	attrs["ApproximateNumberOfMessagesNotVisible"] = strconv.Itoa(inFlight)
	attrs["ApproximateNumberOfMessagesDelayed"] = strconv.Itoa(delayed)
	attrs["CreatedTimestamp"] = strconv.FormatInt(q.createdAt.Unix(), 10)
	return attrs, nil
}

func (s *MemoryStore) GetQueueURL(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.queue(name); err != nil {
		return "", err
	}
	return "/queues/" + name, nil
}

func (s *MemoryStore) PurgeQueue(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.queue(name)
	if err != nil {
		return err
	}
	now := s.now()
	if !q.lastPurge.IsZero() && now.Sub(q.lastPurge) < purgeCooldown {
		return ErrPurgeQueueInProgress
	}
	q.messages = nil
	q.lastPurge = now
	return nil
}

func (s *MemoryStore) ListQueueTags(_ context.Context, name string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.queue(name)
	if err != nil {
		return nil, err
	}
	return maps.Clone(q.tags), nil
}

func (s *MemoryStore) SendMessage(_ context.Context, queueName string, req *models.SendMessageRequest) (*models.SendMessageResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.queue(queueName)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := &models.Message{
		ID:            uuid.NewString(),
		Body:          req.MessageBody,
		MD5OfBody:     md5Hex(req.MessageBody),
		SentTimestamp: now.UnixMilli(),
	}
	delay := q.intAttr("DelaySeconds", 0)
	if req.DelaySeconds != nil {
		if q.fifo() {
			return nil, fmt.Errorf("%w: per-message DelaySeconds on a FIFO queue", ErrUnsupportedParameter)
		}
		delay = int(*req.DelaySeconds)
	}
	msg.VisibleAfter = now.Add(time.Duration(delay) * time.Second).UnixMilli()

	resp := &models.SendMessageResponse{MessageId: msg.ID, MD5OfMessageBody: msg.MD5OfBody}
	if q.fifo() {
		if req.MessageGroupId == nil || *req.MessageGroupId == "" {
			return nil, ErrMissingGroupID
		}
		dedupID := ""
		if req.MessageDeduplicationId != nil {
			dedupID = *req.MessageDeduplicationId
		}
		if dedupID == "" {
			if !q.contentDedup() {
				return nil, ErrMissingDeduplicationID
			}
			sum := sha256.Sum256([]byte(req.MessageBody))
			dedupID = hex.EncodeToString(sum[:])
		}

		for id, e := range q.dedup {
			if now.Sub(e.at) >= deduplicationInterval {
				delete(q.dedup, id)
			}
		}
		// A duplicate is acknowledged with the original id but not enqueued.
		if e, ok := q.dedup[dedupID]; ok {
			resp.MessageId = e.messageID
			resp.SequenceNumber = formatSeq(e.seq)
			return resp, nil
		}

		q.nextSeq++
		msg.MessageGroupId = *req.MessageGroupId
		msg.DeduplicationId = dedupID
		msg.SequenceNumber = q.nextSeq
		q.dedup[dedupID] = dedupEntry{messageID: msg.ID, seq: msg.SequenceNumber, at: now}
		resp.SequenceNumber = formatSeq(msg.SequenceNumber)
	}

	q.messages = append(q.messages, msg)
	q.wake()
	return resp, nil
}

// ReceiveMessage returns up to MaxNumberOfMessages visible messages and
// hides them for the visibility timeout. With a wait time it blocks until a
// message arrives, the wait elapses, or ctx is done.
func (s *MemoryStore) ReceiveMessage(ctx context.Context, queueName string, req *models.ReceiveMessageRequest) (*models.ReceiveMessageResponse, error) {
	s.mu.Lock()
	q, err := s.queue(queueName)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	wait := req.WaitTimeSeconds
	if wait == 0 {
		wait = q.intAttr("ReceiveMessageWaitTimeSeconds", 0)
	}
	s.mu.Unlock()

	var deadline <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(time.Duration(wait) * time.Second)
		defer t.Stop()
		deadline = t.C
	}

	for {
		s.mu.Lock()
		q, err := s.queue(queueName)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		msgs := s.receiveLocked(q, req)
		notify := q.notify
		s.mu.Unlock()

		if len(msgs) > 0 || deadline == nil {
			return &models.ReceiveMessageResponse{Messages: msgs}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return &models.ReceiveMessageResponse{Messages: msgs}, nil
		case <-notify:
		case <-time.After(pollInterval):
		}
	}
}

func (s *MemoryStore) receiveLocked(q *memQueue, req *models.ReceiveMessageRequest) []models.ResponseMessage {
	limit := min(max(req.MaxNumberOfMessages, 1), maxMessagesPerReceive)
	visibility := req.VisibilityTimeout
	if visibility == 0 {
		visibility = q.intAttr("VisibilityTimeout", defaultVisibilityTimeout)
	}
	names := append(slices.Clone(req.AttributeNames), req.MessageSystemAttributeNames...)

	now := s.now()
	nowMs := now.UnixMilli()
	out := make([]models.ResponseMessage, 0, limit)
	// FIFO groups with an earlier message still hidden stay blocked.
	blocked := make(map[string]bool)
	for _, m := range q.messages {
		if len(out) == limit {
			break
		}
		if m.VisibleAfter > nowMs {
			blocked[m.MessageGroupId] = true
			continue
		}
		if q.fifo() && blocked[m.MessageGroupId] {
			continue
		}

		m.ReceivedCount++
		if m.FirstReceived == 0 {
			m.FirstReceived = nowMs
		}
		m.ReceiptHandle = uuid.NewString()
		m.VisibleAfter = now.Add(time.Duration(visibility) * time.Second).UnixMilli()
		out = append(out, models.ResponseMessage{
			MessageId:     m.ID,
			ReceiptHandle: m.ReceiptHandle,
			Body:          m.Body,
			MD5OfBody:     m.MD5OfBody,
			Attributes:    systemAttributes(m, names),
		})
	}
	return out
}

func systemAttributes(m *models.Message, names []string) map[string]string {
	if len(names) == 0 {
		return nil
	}
	all := map[string]string{
		"SentTimestamp":                    strconv.FormatInt(m.SentTimestamp, 10),
		"ApproximateReceiveCount":          strconv.Itoa(m.ReceivedCount),
		"ApproximateFirstReceiveTimestamp": strconv.FormatInt(m.FirstReceived, 10),
	}
	if m.MessageGroupId != "" {
		all["MessageGroupId"] = m.MessageGroupId
		all["MessageDeduplicationId"] = m.DeduplicationId
		all["SequenceNumber"] = strconv.FormatInt(m.SequenceNumber, 10)
	}
	if slices.Contains(names, "All") {
		return all
	}
	attrs := make(map[string]string)
	for _, n := range names {
		if v, ok := all[n]; ok {
			attrs[n] = v
		}
	}
	return attrs
}

func (s *MemoryStore) DeleteMessage(_ context.Context, queueName string, receiptHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.queue(queueName)
	if err != nil {
		return err
	}
	return q.deleteLocked(receiptHandle)
}

func (q *memQueue) deleteLocked(receiptHandle string) error {
	i := q.indexOf(receiptHandle)
	if i < 0 {
		return ErrInvalidReceiptHandle
	}
	q.messages = slices.Delete(q.messages, i, i+1)
	return nil
}

func (q *memQueue) indexOf(receiptHandle string) int {
	if receiptHandle == "" {
		return -1
	}
	return slices.IndexFunc(q.messages, func(m *models.Message) bool {
		return m.ReceiptHandle == receiptHandle
	})
}

func (s *MemoryStore) DeleteMessageBatch(_ context.Context, queueName string, entries []models.DeleteMessageBatchRequestEntry) (*models.DeleteMessageBatchResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.queue(queueName)
	if err != nil {
		return nil, err
	}
	resp := &models.DeleteMessageBatchResponse{
		Successful: []models.DeleteMessageBatchResultEntry{},
		Failed:     []models.BatchResultErrorEntry{},
	}
	for _, e := range entries {
		if err := q.deleteLocked(e.ReceiptHandle); err != nil {
			resp.Failed = append(resp.Failed, models.BatchResultErrorEntry{
				Id:          e.Id,
				Code:        "ReceiptHandleIsInvalid",
				Message:     err.Error(),
				SenderFault: true,
			})
			continue
		}
		resp.Successful = append(resp.Successful, models.DeleteMessageBatchResultEntry{Id: e.Id})
	}
	return resp, nil
}

func (s *MemoryStore) ChangeMessageVisibility(_ context.Context, queueName string, receiptHandle string, visibilityTimeout int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.queue(queueName)
	if err != nil {
		return err
	}
	i := q.indexOf(receiptHandle)
	if i < 0 {
		return ErrInvalidReceiptHandle
	}
	q.messages[i].VisibleAfter = s.now().Add(time.Duration(visibilityTimeout) * time.Second).UnixMilli()
	if visibilityTimeout == 0 {
		q.wake()
	}
	return nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func formatSeq(seq int64) *string {
	s := strconv.FormatInt(seq, 10)
	return &s
}
