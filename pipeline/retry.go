package pipeline

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/eventfold/eventfold"
)

// DefaultRetryDelay is the fixed backoff between attempts.
const DefaultRetryDelay = 50 * time.Millisecond

// RetryConfig tunes the retry interceptor.
type RetryConfig struct {
	// MaxRetries bounds the number of retries after the first attempt, so a
	// persistently failing operation is attempted MaxRetries+1 times. A value
	// of -1 disables the bound.
	MaxRetries int
	// Delay between attempts; DefaultRetryDelay when zero.
	Delay  time.Duration
	Logger *zap.Logger
	// Classify decides whether an error is recoverable; defaults to
	// eventfold.Recoverable. Non-recoverable errors propagate on first
	// occurrence.
	Classify func(error) bool
}

// Retry wraps one unit-of-work execution with bounded retry on the known set
// of recoverable failures. Before the first attempt it tags the message as a
// reply when its id differs from its correlation id, a case the transport's
// own reply detection cannot observe.
func Retry(cfg RetryConfig) Interceptor {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Classify == nil {
		cfg.Classify = eventfold.Recoverable
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, m *Message) error {
			if m.CorrelationID != "" && m.ID != m.CorrelationID {
				m.SetHeader(HeaderReply, "true")
			}

			var backoff retry.Backoff = retry.NewConstant(cfg.Delay)
			if cfg.MaxRetries >= 0 {
				backoff = retry.WithMaxRetries(uint64(cfg.MaxRetries), backoff)
			}

			attempts := 0
			return retry.Do(ctx, backoff, func(ctx context.Context) error {
				attempts++
				err := next(ctx, m)
				if err == nil {
					if attempts > 1 {
						cfg.Logger.Debug("operation succeeded after retries",
							zap.String("message_id", m.ID),
							zap.Int("attempts", attempts))
					}
					return nil
				}
				if !cfg.Classify(err) {
					return err
				}
				logRetry(cfg, m, attempts, err)
				return retry.RetryableError(err)
			})
		}
	}
}

// logRetry escalates from debug to informational once more than half the
// retry budget is consumed, signaling sustained contention to operators.
func logRetry(cfg RetryConfig, m *Message, attempts int, err error) {
	fields := []zap.Field{
		zap.String("message_id", m.ID),
		zap.Int("attempt", attempts),
		zap.Error(err),
	}
	retriesUsed := attempts - 1
	if cfg.MaxRetries > 0 && retriesUsed*2 > cfg.MaxRetries {
		cfg.Logger.Info("operation still failing, retrying", fields...)
		return
	}
	cfg.Logger.Debug("operation failed, retrying", fields...)
}
