package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eventfold/eventfold"
	"github.com/eventfold/eventfold/pipeline"
)

func recoverableFailure() error {
	return &eventfold.PersistenceError{Op: "commit", Err: fmt.Errorf("store unavailable")}
}

func TestRetryAttemptsBudgetPlusOne(t *testing.T) {
	attempts := 0
	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error {
			attempts++
			return recoverableFailure()
		},
		pipeline.Retry(pipeline.RetryConfig{MaxRetries: 3, Delay: time.Millisecond}),
	)

	err := handler(context.Background(), pipeline.NewMessage(nil))
	if err == nil {
		t.Fatal("expected the failure to propagate")
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", attempts)
	}
	var persistence *eventfold.PersistenceError
	if !errors.As(err, &persistence) {
		t.Fatalf("expected the original error after exhaustion, got %v", err)
	}
}

func TestRetryZeroBudgetSingleAttempt(t *testing.T) {
	attempts := 0
	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error {
			attempts++
			return recoverableFailure()
		},
		pipeline.Retry(pipeline.RetryConfig{MaxRetries: 0, Delay: time.Millisecond}),
	)

	if err := handler(context.Background(), pipeline.NewMessage(nil)); err == nil {
		t.Fatal("expected the failure to propagate")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestRetryFatalErrorNotRetried(t *testing.T) {
	attempts := 0
	fatal := fmt.Errorf("invalid payload")
	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error {
			attempts++
			return fatal
		},
		pipeline.Retry(pipeline.RetryConfig{MaxRetries: 3, Delay: time.Millisecond}),
	)

	err := handler(context.Background(), pipeline.NewMessage(nil))
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the fatal error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("a fatal error must not be retried, got %d attempts", attempts)
	}
}

func TestRetryUnboundedUntilSuccess(t *testing.T) {
	attempts := 0
	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error {
			attempts++
			if attempts < 6 {
				return recoverableFailure()
			}
			return nil
		},
		pipeline.Retry(pipeline.RetryConfig{MaxRetries: -1, Delay: time.Millisecond}),
	)

	if err := handler(context.Background(), pipeline.NewMessage(nil)); err != nil {
		t.Fatal(err)
	}
	if attempts != 6 {
		t.Fatalf("expected 6 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error {
			attempts++
			cancel()
			return recoverableFailure()
		},
		pipeline.Retry(pipeline.RetryConfig{MaxRetries: -1, Delay: time.Millisecond}),
	)

	err := handler(ctx, pipeline.NewMessage(nil))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected one attempt before cancellation, got %d", attempts)
	}
}

func TestRetryTagsReplies(t *testing.T) {
	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error { return nil },
		pipeline.Retry(pipeline.RetryConfig{MaxRetries: 0, Delay: time.Millisecond}),
	)

	reply := &pipeline.Message{ID: "m2", CorrelationID: "m1"}
	if err := handler(context.Background(), reply); err != nil {
		t.Fatal(err)
	}
	if !reply.IsReply() {
		t.Fatal("a message answering another correlation id must be tagged as a reply")
	}

	request := pipeline.NewMessage(nil)
	if err := handler(context.Background(), request); err != nil {
		t.Fatal(err)
	}
	if request.IsReply() {
		t.Fatal("a request message must not be tagged as a reply")
	}
}

func TestRetryLogEscalation(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error {
			return recoverableFailure()
		},
		pipeline.Retry(pipeline.RetryConfig{MaxRetries: 4, Delay: time.Millisecond, Logger: logger}),
	)

	if err := handler(context.Background(), pipeline.NewMessage(nil)); err == nil {
		t.Fatal("expected the failure to propagate")
	}

	var debugs, infos int
	for _, entry := range observed.All() {
		switch entry.Level {
		case zapcore.DebugLevel:
			debugs++
		case zapcore.InfoLevel:
			infos++
		}
	}
	// five failing attempts: the first three log debug, past half the
	// budget the remaining two escalate to info
	if debugs != 3 || infos != 2 {
		t.Fatalf("expected 3 debug and 2 info entries, got %d/%d", debugs, infos)
	}
}
