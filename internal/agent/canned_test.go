package agent

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPool map[string][]string

func (p staticPool) Replies(sceneID string) []string {
	if r, ok := p[sceneID]; ok {
		return r
	}
	return p["general"]
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestCannedReplierCyclesByTurnIndex(t *testing.T) {
	pool := staticPool{
		"frontend": {"f0", "f1", "f2", "f3"},
		"general":  {"g0", "g1"},
	}
	r := NewCannedReplier(pool, DelayConfig{}, WithSleeper(noSleep))

	for turn, want := range []string{"f0", "f1", "f2", "f3", "f0", "f1", "f2", "f3", "f0"} {
		reply, err := r.Reply(context.Background(), ReplyRequest{SceneID: "frontend", TurnIndex: turn})
		require.NoError(t, err)
		assert.Equal(t, want, reply.Content, "turn %d", turn)
	}
}

func TestCannedReplierUnknownSceneUsesGenericPool(t *testing.T) {
	pool := staticPool{"general": {"g0", "g1"}}
	r := NewCannedReplier(pool, DelayConfig{}, WithSleeper(noSleep))

	assert.Equal(t, "g0", r.Select("nope", 0))
	assert.Equal(t, "g1", r.Select("nope", 1))
	assert.Equal(t, "g0", r.Select("nope", 2))
	assert.Equal(t, "g0", r.Select("nope", -3))
}

func TestCannedReplierDelayWithinBounds(t *testing.T) {
	var slept []time.Duration
	sleeper := func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	r := NewCannedReplier(staticPool{"general": {"g"}}, DefaultDelayConfig(),
		WithSleeper(sleeper),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)

	for i := 0; i < 50; i++ {
		_, err := r.Reply(context.Background(), ReplyRequest{TurnIndex: i})
		require.NoError(t, err)
	}
	require.Len(t, slept, 50)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 2000*time.Millisecond)
	}
}

func TestCannedReplierTimestampFromClock(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	r := NewCannedReplier(staticPool{"general": {"g"}}, DelayConfig{},
		WithSleeper(noSleep),
		WithClock(func() time.Time { return at }),
	)

	reply, err := r.Reply(context.Background(), ReplyRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), reply.Timestamp)
}

func TestCannedReplierHonoursCancellation(t *testing.T) {
	r := NewCannedReplier(staticPool{"general": {"g"}}, DelayConfig{Min: time.Hour, Max: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reply(ctx, ReplyRequest{})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestNewCannedReplierNormalizesDelay(t *testing.T) {
	r := NewCannedReplier(staticPool{}, DelayConfig{Min: 2 * time.Second, Max: time.Second})
	assert.Equal(t, 2*time.Second, r.delay.Max)
	assert.Equal(t, 2*time.Second, r.nextDelay())
}
