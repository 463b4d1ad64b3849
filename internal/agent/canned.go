package agent

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// CannedReplier answers with pre-written replies chosen by turn index,
// after a random delay that imitates model latency.
type CannedReplier struct {
	pool  ReplyPool
	delay DelayConfig

	mu  sync.Mutex
	rng *rand.Rand

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// CannedOption configures a CannedReplier.
type CannedOption func(*CannedReplier)

// WithRand sets the random source used for delays.
func WithRand(rng *rand.Rand) CannedOption {
	return func(r *CannedReplier) { r.rng = rng }
}

// WithClock overrides the reply timestamp source.
func WithClock(now func() time.Time) CannedOption {
	return func(r *CannedReplier) { r.now = now }
}

// WithSleeper overrides how the delay is waited out.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) CannedOption {
	return func(r *CannedReplier) { r.sleep = sleep }
}

// NewCannedReplier creates a replier over pool. A Max below Min is raised to Min.
func NewCannedReplier(pool ReplyPool, delay DelayConfig, opts ...CannedOption) *CannedReplier {
	if delay.Min < 0 {
		delay.Min = 0
	}
	if delay.Max < delay.Min {
		delay.Max = delay.Min
	}
	r := &CannedReplier{
		pool:  pool,
		delay: delay,
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select returns the canned reply for sceneID at turnIndex.
// Replies cycle once turnIndex passes the end of the pool.
func (r *CannedReplier) Select(sceneID string, turnIndex int) string {
	replies := r.pool.Replies(sceneID)
	if len(replies) == 0 {
		return ""
	}
	if turnIndex < 0 {
		turnIndex = 0
	}
	return replies[turnIndex%len(replies)]
}

// Reply waits out the simulated latency and returns the selected reply.
// The only error is cancellation of ctx.
func (r *CannedReplier) Reply(ctx context.Context, req ReplyRequest) (Reply, error) {
	if err := r.sleep(ctx, r.nextDelay()); err != nil {
		return Reply{}, err
	}
	return Reply{
		Content:   r.Select(req.SceneID, req.TurnIndex),
		Timestamp: r.now().UnixMilli(),
	}, nil
}

func (r *CannedReplier) nextDelay() time.Duration {
	span := r.delay.Max - r.delay.Min
	if span <= 0 {
		return r.delay.Min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delay.Min + time.Duration(r.rng.Int64N(int64(span)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
