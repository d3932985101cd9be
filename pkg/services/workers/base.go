package workers

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// BaseWorker owns a durable pull subscription bound to an existing consumer.
type BaseWorker struct {
	name     string
	js       nats.JetStreamContext
	mu       sync.Mutex
	sub      *nats.Subscription
	consumer string
	stream   string
	subject  string
}

func NewBaseWorker(name string, js nats.JetStreamContext, stream, consumer, subject string) *BaseWorker {
	return &BaseWorker{
		name:     name,
		js:       js,
		consumer: consumer,
		stream:   stream,
		subject:  subject,
	}
}

func (w *BaseWorker) Name() string {
	return w.name
}

func (w *BaseWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub != nil {
		return w.sub.Drain()
	}
	return nil
}

// processMessages fetches in batches until ctx is cancelled. A handler error
// naks the message so JetStream redelivers it, up to the consumer's MaxDeliver.
func (w *BaseWorker) processMessages(ctx context.Context, handler func(*nats.Msg) error) error {
	sub, err := w.js.PullSubscribe(w.subject, w.consumer,
		nats.ManualAck(),
		nats.Bind(w.stream, w.consumer),
	)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()

	log.Printf("[%s] Starting worker for stream: %s, consumer: %s", w.name, w.stream, w.consumer)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] Worker stopping", w.name)
			return ctx.Err()
		default:
		}

		msgs, err := sub.Fetch(10, nats.MaxWait(2*time.Second))
		if err != nil && !errors.Is(err, nats.ErrTimeout) {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return err
			}
			log.Printf("[%s] Error fetching messages: %v", w.name, err)
			continue
		}

		for _, msg := range msgs {
			if err := handler(msg); err != nil {
				log.Printf("[%s] Handler failed on %s: %v", w.name, msg.Subject, err)
				if err := msg.Nak(); err != nil {
					log.Printf("[%s] Error rejecting message: %v", w.name, err)
				}
				continue
			}
			if err := msg.Ack(); err != nil {
				log.Printf("[%s] Error acknowledging message: %v", w.name, err)
			}
		}
	}
}
