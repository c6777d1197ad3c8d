// Package broker durably dispatches run-start triggers, node tasks, and
// completion signals over Redis Streams consumer groups: XADD to publish,
// XREADGROUP to consume, XACK on success. Delivery is at-least-once —
// every consumer must treat its handler as idempotent.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lyzr/dagrunner/common/config"
	"github.com/lyzr/dagrunner/common/logger"
	redisclient "github.com/lyzr/dagrunner/common/redis"
)

const (
	streamRunStart   = "dagrunner:run_start"
	streamCompletion = "dagrunner:completions"
	streamPrefix     = "dagrunner:tasks:"
	attemptsHashKey  = "dagrunner:attempts"
)

// Broker wraps the Redis client with the retry-count and message-age caps
// a durable task queue needs on top of raw consumer groups.
type Broker struct {
	client *redisclient.Client
	cfg    config.BrokerConfig
	log    *logger.Logger
}

// New constructs a Broker. It creates no consumer groups, and neither do the
// Consume* loops: groups exist only once EnsureGroups has run, so a
// publish-only process (e.g. the HTTP API) never needs group-creation
// permissions.
func New(client *redisclient.Client, cfg config.BrokerConfig, log *logger.Logger) *Broker {
	return &Broker{client: client, cfg: cfg, log: log}
}

// Health pings the underlying Redis connection.
func (b *Broker) Health(ctx context.Context) error {
	_, err := b.client.GetUnderlying().Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func taskStream(queue string) string {
	return streamPrefix + queue
}

// PublishRunStart enqueues the run-start trigger for runID.
func (b *Broker) PublishRunStart(ctx context.Context, runID string) error {
	msg := RunStartMessage{RunID: runID}
	return b.publish(ctx, streamRunStart, msg)
}

// PublishNodeTask enqueues task on the stream matching its node kind's
// queue category.
func (b *Broker) PublishNodeTask(ctx context.Context, task NodeTask) error {
	if !task.Kind.Valid() {
		return fmt.Errorf("broker: refusing to publish task for unknown node kind %q", task.Kind)
	}
	return b.publish(ctx, taskStream(task.Kind.Queue()), task)
}

// PublishCompletion enqueues sig on the shared completions stream that the
// Coordinator consumes.
func (b *Broker) PublishCompletion(ctx context.Context, sig CompletionSignal) error {
	return b.publish(ctx, streamCompletion, sig)
}

func (b *Broker) publish(ctx context.Context, stream string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: marshal message: %w", err)
	}
	_, err = b.client.AddToStream(ctx, stream, map[string]interface{}{"data": string(data)})
	return err
}

// EnsureGroups creates the consumer group on every stream the given queue
// categories use, plus the run-start and completion streams. Call this once
// at worker startup before Consume*.
func (b *Broker) EnsureGroups(ctx context.Context, queues []string) error {
	streams := []string{streamRunStart, streamCompletion}
	for _, q := range queues {
		streams = append(streams, taskStream(q))
	}
	for _, s := range streams {
		if err := b.client.CreateStreamGroup(ctx, s, b.cfg.ConsumerGroup); err != nil {
			return fmt.Errorf("broker: create group on %s: %w", s, err)
		}
	}
	return nil
}

// ConsumeRunStart blocks, dispatching each run-start message to handler,
// until ctx is cancelled.
func (b *Broker) ConsumeRunStart(ctx context.Context, consumerName string, handler func(context.Context, RunStartMessage) error) error {
	return b.consumeLoop(ctx, streamRunStart, consumerName, func(ctx context.Context, raw string) error {
		var msg RunStartMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return fmt.Errorf("unmarshal run_start: %w", err)
		}
		return handler(ctx, msg)
	})
}

// ConsumeNodeTasks blocks on the stream for queue, dispatching each task to
// handler, until ctx is cancelled.
func (b *Broker) ConsumeNodeTasks(ctx context.Context, queue, consumerName string, handler func(context.Context, NodeTask) error) error {
	return b.consumeLoop(ctx, taskStream(queue), consumerName, func(ctx context.Context, raw string) error {
		var task NodeTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return fmt.Errorf("unmarshal node task: %w", err)
		}
		return handler(ctx, task)
	})
}

// ConsumeCompletions blocks, dispatching each completion signal to handler,
// until ctx is cancelled.
func (b *Broker) ConsumeCompletions(ctx context.Context, consumerName string, handler func(context.Context, CompletionSignal) error) error {
	return b.consumeLoop(ctx, streamCompletion, consumerName, func(ctx context.Context, raw string) error {
		var sig CompletionSignal
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			return fmt.Errorf("unmarshal completion: %w", err)
		}
		return handler(ctx, sig)
	})
}

// consumeLoop implements the shared read-dispatch-ack cycle: each pass reads
// new entries, then claims entries left pending longer than ClaimIdleTime
// (a failed handler, or a consumer that died) and handles them again.
// Messages past the age cap are dead-lettered without being handled; messages whose
// handler keeps failing past MaxDeliveries are dead-lettered too, so one
// poison message can never wedge a queue forever.
func (b *Broker) consumeLoop(ctx context.Context, stream, consumerName string, handle func(context.Context, string) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		streams, err := b.client.ReadFromStreamGroup(ctx, b.cfg.ConsumerGroup, consumerName, stream, 10, b.cfg.BlockTimeout)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			b.log.Warn("broker consume read failed", "stream", stream, "error", err)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				b.handleMessage(ctx, stream, consumerName, msg.ID, msg.Values, handle)
			}
		}

		claimed, _, err := b.client.GetUnderlying().XAutoClaim(ctx, &goredis.XAutoClaimArgs{
			Stream:   stream,
			Group:    b.cfg.ConsumerGroup,
			MinIdle:  b.cfg.ClaimIdleTime,
			Start:    "0-0",
			Count:    10,
			Consumer: consumerName,
		}).Result()
		if err != nil && ctx.Err() == nil {
			b.log.Warn("broker reclaim of idle messages failed", "stream", stream, "error", err)
		}
		for _, msg := range claimed {
			b.handleMessage(ctx, stream, consumerName, msg.ID, msg.Values, handle)
		}
	}
}

func (b *Broker) handleMessage(ctx context.Context, stream, consumerName, id string, values map[string]interface{}, handle func(context.Context, string) error) {
	if b.tooOld(id) {
		b.log.Warn("broker dead-lettering aged message", "stream", stream, "id", id)
		_ = b.client.AckStreamMessage(ctx, stream, b.cfg.ConsumerGroup, id)
		return
	}

	raw, _ := values["data"].(string)
	if err := handle(ctx, raw); err != nil {
		attempts, incErr := b.client.IncrementHash(ctx, attemptsHashKey, stream+":"+id, 1)
		if incErr != nil {
			b.log.Error("broker attempt counter failed", "stream", stream, "id", id, "error", incErr)
		}
		if attempts >= int64(b.cfg.MaxDeliveries) {
			b.log.Error("broker dead-lettering message after max deliveries", "stream", stream, "id", id, "attempts", attempts, "error", err)
			_ = b.client.AckStreamMessage(ctx, stream, b.cfg.ConsumerGroup, id)
			return
		}
		b.log.Warn("broker handler failed, leaving unacked for redelivery", "stream", stream, "id", id, "attempts", attempts, "error", err)
		return
	}

	if err := b.client.AckStreamMessage(ctx, stream, b.cfg.ConsumerGroup, id); err != nil {
		b.log.Error("broker ack failed", "stream", stream, "id", id, "error", err)
	}
}

// tooOld reports whether a stream entry id (millis-seqno form) is older
// than the broker's message age cap.
func (b *Broker) tooOld(id string) bool {
	millisPart := id
	if idx := strings.IndexByte(id, '-'); idx >= 0 {
		millisPart = id[:idx]
	}
	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil {
		return false
	}
	ts := time.UnixMilli(millis)
	return time.Since(ts) > b.cfg.MaxMessageAge
}
