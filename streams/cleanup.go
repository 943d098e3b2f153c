package streams

import (
	"context"
	"errors"
	"fmt"

	"github.com/tabeth/sqstreams/config"
	"github.com/tabeth/sqstreams/queue"
)

// DeleteAllUsedQueues deletes every queue mapper can assign streams to. It
// keeps going past failures and returns them joined.
func DeleteAllUsedQueues(ctx context.Context, mapper Mapper, serviceID string, opts *config.Options, options ...queue.Option) error {
	var errs []error
	for _, id := range mapper.AllQueues() {
		q, err := queue.New(id.String(), serviceID, opts, options...)
		if err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", id, err))
			continue
		}
		if err := q.InitQueue(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := q.DeleteQueue(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
