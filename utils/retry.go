package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err as non-retriable for Retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var perr *permanentError
	return errors.As(err, &perr)
}

// Retry calls fn until it succeeds, returns a permanent error, or fails retries+1 times in total.
// Attempts are separated by a fixed backoff.
func Retry(ctx context.Context, retries int, backoff time.Duration, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		if attempt >= retries {
			return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, attempt+1, err)
		}
		if ContextSleep(ctx, backoff) == nil {
			return ctx.Err()
		}
	}
}
