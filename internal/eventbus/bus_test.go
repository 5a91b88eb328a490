package eventbus

import (
	"errors"
	"testing"
)

type killEvent struct {
	TargetID int
}

func TestImmediateHandlersRunBeforePublishReturnsInPriorityOrder(t *testing.T) {
	b := NewBus()
	var order []string

	Subscribe(b, "kill", func(e killEvent) error {
		order = append(order, "low")
		return nil
	}, HandlerConfig{Priority: PriorityLow, Mode: ModeImmediate})

	Subscribe(b, "kill", func(e killEvent) error {
		order = append(order, "highest")
		return nil
	}, HandlerConfig{Priority: PriorityHighest, Mode: ModeImmediate})

	Subscribe(b, "kill", func(e killEvent) error {
		order = append(order, "normal")
		return nil
	}, HandlerConfig{Priority: PriorityNormal, Mode: ModeImmediate})

	delivered := b.Publish("kill", killEvent{TargetID: 1})
	if delivered != 3 {
		t.Fatalf("delivered = %d, want 3", delivered)
	}
	want := []string{"highest", "normal", "low"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order[%d] = %s, want %s (full order %v)", i, order[i], w, order)
		}
	}
}

func TestMismatchedTypeSilentlySkipped(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, "kill", func(e string) error {
		calls++
		return nil
	}, HandlerConfig{Mode: ModeImmediate})

	delivered := b.Publish("kill", killEvent{TargetID: 1})
	if delivered != 0 {
		t.Fatalf("delivered = %d, want 0 for mismatched type", delivered)
	}
	if calls != 0 {
		t.Fatalf("handler should not have been called")
	}
}

func TestHandlerErrorUnsubscribesUnlessPersistAfterError(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, "kill", func(e killEvent) error {
		calls++
		return errors.New("boom")
	}, HandlerConfig{Mode: ModeImmediate, PersistAfterError: false})

	b.Publish("kill", killEvent{TargetID: 1})
	b.Publish("kill", killEvent{TargetID: 2})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (unsubscribed after first error)", calls)
	}
}

func TestHandlerErrorPersistsWhenConfigured(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, "kill", func(e killEvent) error {
		calls++
		return errors.New("boom")
	}, HandlerConfig{Mode: ModeImmediate, PersistAfterError: true})

	b.Publish("kill", killEvent{TargetID: 1})
	b.Publish("kill", killEvent{TargetID: 2})

	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (persisted after error)", calls)
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := NewBus()
	calls := 0
	id := Subscribe(b, "kill", func(e killEvent) error {
		calls++
		return nil
	}, HandlerConfig{Mode: ModeImmediate})

	b.Unsubscribe("kill", id)
	b.Publish("kill", killEvent{TargetID: 1})

	if calls != 0 {
		t.Fatalf("calls = %d, want 0 after unsubscribe", calls)
	}
}
