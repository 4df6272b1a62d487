package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/parnexcodes/ferry/internal/logging"
	"github.com/sirupsen/logrus"
)

// Retrying wraps a Doer and repeats requests that failed with a retryable
// error. Cancellation, timeouts and API failures are returned immediately.
type Retrying struct {
	next       Doer
	maxRetries int
	delay      time.Duration
}

// NewRetrying creates a retrying Doer. maxRetries <= 0 disables retries.
func NewRetrying(next Doer, maxRetries int, delay time.Duration) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		next:       next,
		maxRetries: maxRetries,
		delay:      delay,
	}
}

// Do implements Doer
func (r *Retrying) Do(ctx context.Context, req *Request, onProgress ProgressFunc) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			logging.Debug("Request retry attempt", logrus.Fields{
				"url":         req.URL,
				"attempt":     attempt,
				"max_retries": r.maxRetries,
			})

			select {
			case <-ctx.Done():
				return nil, NewCancelledError("transfer cancelled during retry", ctx.Err())
			case <-time.After(r.delay * time.Duration(attempt)):
			}
		}

		resp, err := r.next.Do(ctx, req, onProgress)
		if err == nil {
			return resp, nil
		}
		if !IsRetryable(err) {
			return resp, err
		}

		lastErr = err
		logging.Debug("Request retryable error", logrus.Fields{
			"url":     req.URL,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}

	if r.maxRetries == 0 {
		return nil, lastErr
	}

	logging.ErrorContext("all_retries_failed", lastErr, map[string]interface{}{
		"url":         req.URL,
		"max_retries": r.maxRetries,
	})
	return nil, NewNetworkError(fmt.Sprintf("all %d attempts failed: %s", r.maxRetries+1, Message(lastErr)), lastErr)
}
