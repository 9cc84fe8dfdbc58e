package recording

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/time/rate"
)

// OverloadPolicy samples system pressure and reports whether the current
// sample is unhealthy. The default implementation samples CPU via
// gopsutil; tests substitute a deterministic policy.
type OverloadPolicy func(ctx context.Context) (unhealthy bool, err error)

// CPUOverloadPolicy builds an OverloadPolicy that reports unhealthy when
// total CPU utilization is at or above thresholdPercent.
func CPUOverloadPolicy(thresholdPercent float64) OverloadPolicy {
	return func(ctx context.Context) (bool, error) {
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return false, err
		}
		if len(percents) == 0 {
			return false, nil
		}
		return percents[0] >= thresholdPercent, nil
	}
}

// overloadGuard polls an OverloadPolicy at pollInterval; after
// streakThreshold consecutive unhealthy samples it invokes trigger exactly
// once. It never fires during the protection window: the policy the
// Service passes in reports healthy until the window has elapsed.
type overloadGuard struct {
	policy       OverloadPolicy
	limiter      *rate.Limiter
	streakNeeded int
	trigger      func()
	cancel       context.CancelFunc
	done         chan struct{}
}

func startOverloadGuard(policy OverloadPolicy, pollInterval time.Duration, streakNeeded int, trigger func()) *overloadGuard {
	ctx, cancel := context.WithCancel(context.Background())
	g := &overloadGuard{
		policy:       policy,
		limiter:      rate.NewLimiter(rate.Every(pollInterval), 1),
		streakNeeded: streakNeeded,
		trigger:      trigger,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go g.loop(ctx, pollInterval)
	return g
}

func (g *overloadGuard) stop() {
	g.cancel()
	<-g.done
}

func (g *overloadGuard) loop(ctx context.Context, pollInterval time.Duration) {
	defer close(g.done)
	t := time.NewTicker(pollInterval)
	defer t.Stop()

	streak := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !g.limiter.Allow() {
				continue
			}
			unhealthy, err := g.policy(ctx)
			if err != nil {
				continue
			}
			if unhealthy {
				streak++
			} else {
				streak = 0
			}
			if streak >= g.streakNeeded {
				g.trigger()
				return
			}
		}
	}
}
