package emitter

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/apexops/dashboard/internal/domain"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
)

// SyntheticSampler draws every field uniformly from fixed ranges:
// gpu [70,90), cpu [40,70), requests [1500,2500), response time [240,260).
type SyntheticSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSyntheticSampler returns a sampler backed by rng, or by a randomly
// seeded generator when rng is nil.
func NewSyntheticSampler(rng *rand.Rand) *SyntheticSampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SyntheticSampler{rng: rng}
}

func (s *SyntheticSampler) Sample(_ context.Context, now time.Time) (domain.LiveStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.LiveStats{
		Timestamp:         now.UTC(),
		GPUUtilization:    s.rng.Float64()*20 + 70,
		CPUUtilization:    s.rng.Float64()*30 + 40,
		RequestsPerMinute: s.rng.IntN(1000) + 1500,
		ResponseTime:      s.rng.IntN(20) + 240,
	}, nil
}

type percentFunc func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)

// HostSampler reports the host's CPU utilization. The remaining fields come
// from the synthetic sampler.
type HostSampler struct {
	synthetic *SyntheticSampler
	percent   percentFunc
}

func NewHostSampler(synthetic *SyntheticSampler) *HostSampler {
	if synthetic == nil {
		synthetic = NewSyntheticSampler(nil)
	}
	return &HostSampler{synthetic: synthetic, percent: cpu.PercentWithContext}
}

func (h *HostSampler) Sample(ctx context.Context, now time.Time) (domain.LiveStats, error) {
	stats, err := h.synthetic.Sample(ctx, now)
	if err != nil {
		return domain.LiveStats{}, err
	}

	// Interval 0 compares against the previous call, so it never blocks.
	pct, err := h.percent(ctx, 0, false)
	if err != nil {
		return domain.LiveStats{}, errors.Wrap(err, "read host cpu")
	}
	if len(pct) == 0 {
		return domain.LiveStats{}, errors.New("read host cpu: no samples")
	}
	stats.CPUUtilization = pct[0]
	return stats, nil
}
