// Package eventbus builds the Watermill transport that carries generation
// output from the inference goroutine to the stream cache. The default
// transport is an in-process gochannel Pub/Sub; Redis Streams can be enabled
// for deployments that want the turn event flow visible outside the process.
package eventbus

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Settings holds transport configuration.
type Settings struct {
	RedisEnabled bool
	RedisAddr    string
	Group        string
	Consumer     string
}

// Bus bundles the publisher/subscriber pair for one transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closers []func() error
}

// Build constructs a Bus from settings. When Redis is disabled the returned
// publisher and subscriber share one gochannel Pub/Sub, so subscriptions must
// exist before the matching publishes.
func Build(s Settings) (*Bus, error) {
	logger := NewWatermillLogger(log.Logger)

	if !s.RedisEnabled {
		ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &Bus{
			Publisher:  ps,
			Subscriber: ps,
			closers:    []func() error{ps.Close},
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, err
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, err
	}

	return &Bus{
		Publisher:  pub,
		Subscriber: sub,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

// Close shuts the transport down; safe to call once at process exit.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TopicForStream computes the event topic for one generation's output.
func TopicForStream(streamID string) string { return "turn:" + streamID }
