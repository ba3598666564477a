package eventbus

import (
	"context"
	"io"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// MetaEOS marks the final message of a generation. The payload is still
// delivered as a chunk; the source reports io.EOF on the following pull.
const MetaEOS = "eos"

// SubscriberSource adapts one topic subscription into a single-consumption
// chunk source for the stream cache. Each message payload is one chunk, in
// publish order. The subscription is released as soon as the final message
// was delivered; Close releases it early for turns that never publish one.
type SubscriberSource struct {
	ch     <-chan *message.Message
	cancel context.CancelFunc
	done   bool
}

// NewSubscriberSource subscribes to topic and returns the source. The
// subscription lives until the final message arrives, Close is called, or
// ctx is cancelled, so pass the process base context rather than a request
// context.
func NewSubscriberSource(ctx context.Context, sub message.Subscriber, topic string) (*SubscriberSource, error) {
	if sub == nil {
		return nil, errors.New("subscriber is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithCancel(ctx)
	ch, err := sub.Subscribe(sctx, topic)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "subscribe %s", topic)
	}
	return &SubscriberSource{ch: ch, cancel: cancel}, nil
}

func (s *SubscriberSource) Next(ctx context.Context) ([]byte, error) {
	if s == nil || s.done {
		return nil, io.EOF
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			// The channel closing before the end-of-stream marker means the
			// transport died mid-turn; the stream cache truncates on this.
			s.done = true
			s.cancel()
			return nil, errors.New("event channel closed before end of stream")
		}
		eos := msg.Metadata.Get(MetaEOS) == "true"
		payload := msg.Payload
		msg.Ack()
		if eos {
			s.done = true
			s.cancel()
		}
		return payload, nil
	}
}

// Close tears the subscription down. It is idempotent and safe to call
// concurrently with a blocked Next, which then observes the channel closing.
func (s *SubscriberSource) Close() error {
	if s == nil {
		return nil
	}
	s.cancel()
	return nil
}

// Publish sends one chunk to topic, flagging it as the final one when eos is
// set.
func Publish(pub message.Publisher, topic string, payload []byte, eos bool) error {
	if pub == nil {
		return errors.New("publisher is nil")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if eos {
		msg.Metadata.Set(MetaEOS, "true")
	}
	return pub.Publish(topic, msg)
}
