package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type StreamsConfig struct {
	Addr        string
	Password    string
	DB          int
	Stream      string
	DLQStream   string
	Group       string
	Consumer    string
	MaxAttempts int
	Logger      *zerolog.Logger
}

// StreamsQueue implements Producer+Consumer backed by Redis Streams.
type StreamsQueue struct {
	client      *redis.Client
	stream      string
	dlqStream   string
	group       string
	consumer    string
	maxAttempts int
	logger      *zerolog.Logger
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "studyhub_jobs"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = "studyhub_jobs_dlq"
	}
	if cfg.Group == "" {
		cfg.Group = "studyhub_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "api-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue := &StreamsQueue{
		client:      client,
		stream:      cfg.Stream,
		dlqStream:   cfg.DLQStream,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return queue, nil
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, message domain.QueueMessage) error {
	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: streamValues(message),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}
	return nil
}

func (q *StreamsQueue) Consume(ctx context.Context, handler Handler) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				q.handle(ctx, item, handler)
			}
		}
	}
}

func (q *StreamsQueue) handle(ctx context.Context, item redis.XMessage, handler Handler) {
	message, parseErr := ParseStreamValues(item.Values)
	if parseErr != nil {
		q.moveToDLQ(ctx, message, item, parseErr.Error())
		return
	}

	handleErr := handler(ctx, message)
	if handleErr == nil {
		q.ack(ctx, item.ID)
		return
	}
	if ctx.Err() != nil {
		// Left unacknowledged in the pending list for the next consumer.
		return
	}

	message.Attempt++
	if message.Attempt >= q.maxAttempts {
		q.moveToDLQ(ctx, message, item, handleErr.Error())
		return
	}

	if requeueErr := q.Enqueue(ctx, message); requeueErr != nil {
		q.moveToDLQ(ctx, message, item, fmt.Sprintf("requeue failed: %v", requeueErr))
		return
	}
	q.ack(ctx, item.ID)
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ack(ctx context.Context, streamID string) {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		q.logger.Error().Err(err).Str("stream_id", streamID).Msg("xack failed")
		return
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		q.logger.Error().Err(err).Str("stream_id", streamID).Msg("xdel failed")
	}
}

func (q *StreamsQueue) moveToDLQ(
	ctx context.Context,
	message domain.QueueMessage,
	item redis.XMessage,
	reason string,
) {
	values := streamValues(message)
	values["stream_id"] = item.ID
	values["error"] = reason
	values["moved_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Err(); err != nil {
		q.logger.Error().Err(err).Str("job_id", message.JobID).Msg("send to dlq failed")
	} else {
		q.logger.Warn().
			Str("job_id", message.JobID).
			Int("attempt", message.Attempt).
			Str("reason", reason).
			Msg("stream message moved to DLQ")
	}
	q.ack(ctx, item.ID)
}

func streamValues(message domain.QueueMessage) map[string]any {
	return map[string]any{
		"job_id":       message.JobID,
		"kind":         string(message.Kind),
		"user_id":      message.UserID,
		"file_id":      message.FileID,
		"payload":      string(message.Payload),
		"attempt":      message.Attempt,
		"requested_at": message.RequestedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ParseStreamValues decodes the field map of a stream entry.
func ParseStreamValues(values map[string]any) (domain.QueueMessage, error) {
	getString := func(key string) (string, error) {
		value, ok := values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	jobID, err := getString("job_id")
	if err != nil {
		return domain.QueueMessage{}, err
	}
	message := domain.QueueMessage{JobID: jobID}

	kindValue, err := getString("kind")
	if err != nil {
		return message, err
	}
	message.Kind = domain.JobKind(kindValue)

	if message.UserID, err = getString("user_id"); err != nil {
		return message, err
	}
	// file_id is optional: audio can be transcribed without a library file.
	message.FileID, _ = getString("file_id")

	payloadString, err := getString("payload")
	if err != nil {
		return message, err
	}
	message.Payload = []byte(payloadString)

	attemptString, err := getString("attempt")
	if err != nil {
		return message, err
	}
	if message.Attempt, err = strconv.Atoi(attemptString); err != nil {
		return message, fmt.Errorf("invalid attempt: %w", err)
	}

	requestedAtString, err := getString("requested_at")
	if err != nil {
		return message, err
	}
	if message.RequestedAt, err = time.Parse(time.RFC3339Nano, requestedAtString); err != nil {
		return message, fmt.Errorf("invalid requested_at: %w", err)
	}
	return message, nil
}
