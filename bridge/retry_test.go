package bridge

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestWithRetriesSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetries(context.Background(), 1, time.Millisecond, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetriesBoundIsExact(t *testing.T) {
	calls := 0
	failure := fmt.Errorf("always")
	err := WithRetries(context.Background(), 1, time.Millisecond, func(context.Context) error {
		calls++
		return failure
	})
	if err != failure {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Fatalf("fn ran %d times, the bound is retries+1 = 2", calls)
	}
}

func TestWithRetriesSecondAttemptRecovers(t *testing.T) {
	calls := 0
	err := WithRetries(context.Background(), 1, time.Millisecond, func(context.Context) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetriesStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetries(ctx, 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return fmt.Errorf("fail then cancel")
	})
	if err == nil || calls != 1 {
		t.Fatalf("err=%v calls=%d; cancellation must stop further attempts", err, calls)
	}
}
