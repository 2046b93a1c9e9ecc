package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iago/studyhub-back/internal/domain"
)

func TestLocalQueueRedeliversUntilSuccess(t *testing.T) {
	q := NewLocalQueue(4, 3, nil)
	q.retryDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := q.Enqueue(ctx, domain.QueueMessage{JobID: "j1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var calls int32
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, message domain.QueueMessage) error {
			if atomic.AddInt32(&calls, 1) < 2 {
				return errors.New("temporary")
			}
			if message.Attempt != 1 {
				t.Errorf("expected attempt 1 on redelivery, got %d", message.Attempt)
			}
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("expected message to be redelivered")
	}
	if q.DLQSize() != 0 {
		t.Fatalf("expected empty DLQ, got %d", q.DLQSize())
	}
}

func TestLocalQueueMovesExhaustedMessagesToDLQ(t *testing.T) {
	q := NewLocalQueue(4, 2, nil)
	q.retryDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = q.Enqueue(ctx, domain.QueueMessage{JobID: "j1"})

	go func() {
		_ = q.Consume(ctx, func(context.Context, domain.QueueMessage) error {
			return errors.New("always")
		})
	}()

	for q.DLQSize() == 0 {
		select {
		case <-ctx.Done():
			t.Fatalf("expected message in DLQ")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestParseStreamValues(t *testing.T) {
	requestedAt := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	values := streamValues(domain.QueueMessage{
		JobID:       "j1",
		Kind:        domain.JobKindTranscribeAudio,
		UserID:      "u1",
		Payload:     []byte(`{"audio_url":"https://a/b.mp3"}`),
		Attempt:     2,
		RequestedAt: requestedAt,
	})
	// Redis returns every field as a string.
	values["attempt"] = "2"
	delete(values, "file_id")

	message, err := ParseStreamValues(values)
	if err != nil {
		t.Fatalf("expected message, got %v", err)
	}
	if message.JobID != "j1" || message.UserID != "u1" || message.FileID != "" || message.Attempt != 2 {
		t.Fatalf("unexpected message %+v", message)
	}
	if !message.RequestedAt.Equal(requestedAt) {
		t.Fatalf("expected requested_at %s, got %s", requestedAt, message.RequestedAt)
	}

	delete(values, "payload")
	if _, err := ParseStreamValues(values); err == nil {
		t.Fatalf("expected missing payload to fail")
	}
}
