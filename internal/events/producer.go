package events

import (
	"context"
	"encoding/json"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	JobRetryKind       string = "retrato.events.job.retry"
	JobExhaustedKind   string = "retrato.events.job.exhausted"
	JobTimeoutKind     string = "retrato.events.job.timeout"
	JobCompletedKind   string = "retrato.events.job.completed"
	JobFailedKind      string = "retrato.events.job.failed"
	JobRateLimitedKind string = "retrato.events.job.rate_limited"

	eventSource  string = "retrato.api"
	defaultTopic string = "retrato.events"
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// EventProducer buffers telemetry events and hands them to a Writer from a
// background goroutine, so emitting never blocks request or pipeline work on
// a slow sink.
type EventProducer struct {
	buffer           *buffer
	startConsumingCh chan any
	doneCh           chan any
	writer           Writer
	topic            string
	source           string
}

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		buffer:           newBuffer(),
		startConsumingCh: make(chan any, 1),
		doneCh:           make(chan any),
		writer:           w,
		topic:            defaultTopic,
		source:           eventSource,
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

// Emit queues one event of the given kind. The payload is marshalled here so
// a malformed one surfaces at the call site; everything past the buffer is
// fire-and-forget.
func (ep *EventProducer) Emit(_ context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	ep.buffer.PushBack(&envelope{
		Kind: kind,
		Data: data,
	})

	// Wake the consumer if it is parked on an empty buffer. The channel
	// holds one token; a token already pending guarantees a wake-up.
	select {
	case ep.startConsumingCh <- struct{}{}:
	default:
	}

	return nil
}

func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		ep.doneCh <- struct{}{}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		zap.S().Errorf("event producer closed with error: %s", err)
		return err
	}

	zap.S().Named("event_producer").Info("event producer closed")

	return nil
}

func (ep *EventProducer) run() {
	for {
		select {
		case <-ep.doneCh:
			return
		default:
		}

		if ep.buffer.Size() == 0 {
			select {
			case <-ep.startConsumingCh:
			case <-ep.doneCh:
				return
			}
		}

		msg := ep.buffer.Pop()
		if msg == nil {
			continue
		}

		e := cloudevents.NewEvent()
		e.SetID(uuid.NewString())
		e.SetSource(ep.source)
		e.SetType(msg.Kind)
		_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

		if err := ep.writer.Write(context.TODO(), ep.topic, e); err != nil {
			zap.S().Named("event_producer").Errorw("failed to write event", "error", err, "kind", msg.Kind)
		}
	}
}
