package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	q := NewInMemory(4)
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Publish(ctx, Job{Kind: KindCapture, CaptureID: id}); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case job := <-jobs:
			if job.CaptureID != want {
				t.Errorf("got %s, want %s", job.CaptureID, want)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for job")
		}
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Publish(ctx, Job{CaptureID: "fills buffer"}); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := q.Publish(ctx, Job{CaptureID: "blocked"}); err == nil {
		t.Error("expected context error on full buffer")
	}
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	jobs, _ := q.Consume(ctx)
	cancel()
	select {
	case _, ok := <-jobs:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
