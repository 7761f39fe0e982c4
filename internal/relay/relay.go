// Package relay shares one logical broadcast channel between several server
// instances over Redis pub/sub.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apexops/dashboard/internal/realtime"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	publishTimeout = 2 * time.Second
	// DefaultQueueSize bounds frames waiting to be published.
	DefaultQueueSize = 256
)

// Local is the in-process fan-out a Bus feeds. Events broadcast on this
// instance go through BroadcastEncoded so they are counted once; frames
// relayed from other instances use BroadcastFrame.
type Local interface {
	BroadcastEncoded(t realtime.EventType, frame []byte)
	BroadcastFrame(frame []byte)
}

type envelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// Bus delivers events to local clients and to every other instance
// subscribed to the same channel.
type Bus struct {
	rdb     *goredis.Client
	channel string
	origin  string
	local   Local
	log     zerolog.Logger
	queue   chan []byte
}

// Dial parses a redis:// URL and verifies the server is reachable.
func Dial(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis URL")
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

func New(rdb *goredis.Client, channel string, local Local, log zerolog.Logger) *Bus {
	return &Bus{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		local:   local,
		log:     log.With().Str("component", "relay").Logger(),
		queue:   make(chan []byte, DefaultQueueSize),
	}
}

func (b *Bus) Origin() string { return b.origin }

// Broadcast fans ev out locally first and queues it for the other
// instances. It never waits on Redis: when the queue is full the frame is
// only delivered locally.
func (b *Bus) Broadcast(ev realtime.Event) {
	frame, err := realtime.Encode(ev)
	if err != nil {
		b.log.Error().Err(err).Msg("relay encode failed")
		return
	}
	b.local.BroadcastEncoded(ev.Type(), frame)

	select {
	case b.queue <- frame:
	default:
		b.log.Warn().Str("type", string(ev.Type())).Msg("relay publish queue full, frame not relayed")
	}
}

func (b *Bus) publish(ctx context.Context, frame []byte) error {
	data, err := json.Marshal(envelope{Origin: b.origin, Frame: frame})
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	return errors.Wrap(b.rdb.Publish(ctx, b.channel, data).Err(), "publish")
}

// Run publishes queued frames and forwards frames published by other
// instances to the local fan-out until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.publishLoop(ctx) })
	g.Go(func() error { return b.subscribeLoop(ctx) })
	return g.Wait()
}

func (b *Bus) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-b.queue:
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := b.publish(pctx, frame)
			cancel()
			if err != nil && ctx.Err() == nil {
				b.log.Warn().Err(err).Msg("relay publish failed")
			}
		}
	}
}

func (b *Bus) subscribeLoop(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription confirmation so nothing published after
	// Run starts is missed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrapf(err, "subscribe %s", b.channel)
	}
	b.log.Info().Str("channel", b.channel).Str("origin", b.origin).Msg("relay subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			b.deliver(msg.Payload)
		}
	}
}

func (b *Bus) deliver(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Warn().Err(err).Msg("relay dropped malformed envelope")
		return
	}
	if env.Origin == b.origin {
		return
	}
	if len(env.Frame) == 0 {
		b.log.Warn().Str("origin", env.Origin).Msg("relay dropped empty frame")
		return
	}
	b.local.BroadcastFrame(env.Frame)
}
