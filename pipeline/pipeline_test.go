package pipeline_test

import (
	"context"
	"testing"

	"github.com/eventfold/eventfold/pipeline"
)

func TestNewMessageCorrelation(t *testing.T) {
	m := pipeline.NewMessage("body")
	if m.ID == "" {
		t.Fatal("expected a generated id")
	}
	if m.CorrelationID != m.ID {
		t.Fatal("a request message correlates with itself")
	}
	if m.IsReply() {
		t.Fatal("a request message is not a reply")
	}
}

func TestSetHeaderOnNilMap(t *testing.T) {
	m := &pipeline.Message{ID: "m1"}
	m.SetHeader("key", "value")
	if m.Headers["key"] != "value" {
		t.Fatalf("unexpected headers: %v", m.Headers)
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) pipeline.Interceptor {
		return func(next pipeline.Handler) pipeline.Handler {
			return func(ctx context.Context, m *pipeline.Message) error {
				order = append(order, name+" in")
				err := next(ctx, m)
				order = append(order, name+" out")
				return err
			}
		}
	}
	handler := pipeline.Chain(
		func(ctx context.Context, m *pipeline.Message) error {
			order = append(order, "handler")
			return nil
		},
		tag("outer"),
		tag("inner"),
	)

	if err := handler(context.Background(), pipeline.NewMessage(nil)); err != nil {
		t.Fatal(err)
	}
	want := []string{"outer in", "inner in", "handler", "inner out", "outer out"}
	if len(order) != len(want) {
		t.Fatalf("unexpected call order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected call order: %v", order)
		}
	}
}
