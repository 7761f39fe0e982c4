// Package emitter periodically samples live dashboard statistics and
// broadcasts them as stats_update events.
package emitter

import (
	"context"
	"time"

	"github.com/apexops/dashboard/internal/domain"
	"github.com/apexops/dashboard/internal/realtime"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const DefaultInterval = 5 * time.Second

// Sampler produces one LiveStats sample stamped with now.
type Sampler interface {
	Sample(ctx context.Context, now time.Time) (domain.LiveStats, error)
}

type Emitter struct {
	broadcaster realtime.Broadcaster
	sampler     Sampler
	clock       clockwork.Clock
	interval    time.Duration
	log         zerolog.Logger
}

type Option func(*Emitter)

func WithSampler(s Sampler) Option {
	return func(e *Emitter) { e.sampler = s }
}

func WithClock(c clockwork.Clock) Option {
	return func(e *Emitter) { e.clock = c }
}

// WithInterval sets the tick period. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(e *Emitter) {
		if d > 0 {
			e.interval = d
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Emitter) { e.log = log }
}

func New(b realtime.Broadcaster, opts ...Option) *Emitter {
	e := &Emitter{
		broadcaster: b,
		clock:       clockwork.NewRealClock(),
		interval:    DefaultInterval,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sampler == nil {
		e.sampler = NewSyntheticSampler(nil)
	}
	return e
}

// Run emits one sample per interval until ctx is cancelled. The first
// sample is sent one interval after Run starts.
func (e *Emitter) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", e.interval).Msg("stats emitter started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			e.emit(ctx)
		}
	}
}

func (e *Emitter) emit(ctx context.Context) {
	stats, err := e.sampler.Sample(ctx, e.clock.Now())
	if err != nil {
		e.log.Warn().Err(err).Msg("stats sample failed, skipping tick")
		return
	}
	e.broadcaster.Broadcast(realtime.StatsUpdate{Stats: stats})
}
