package tele

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radmon/devclient/internal/metrics"
	"github.com/radmon/devclient/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSend(t *testing.T) {
	t.Parallel()

	errNet := fmt.Errorf("dial tcp: connection refused")
	errStatus := fmt.Errorf("server returned status=503")
	cases := []struct {
		name         string
		maxRetries   int
		script       []error
		fallback     error
		expectOk     bool
		expectTries  int
		expectSleeps []time.Duration
	}{
		{"first-ok", 5, nil, nil, true, 1, nil},
		{"third-ok", 3, []error{errNet, errNet, nil}, nil, true, 3,
			[]time.Duration{2 * time.Second, 4 * time.Second}},
		{"status-then-ok", 5, []error{errStatus, nil}, nil, true, 2,
			[]time.Duration{2 * time.Second}},
		{"exhausted", 5, nil, errNet, false, 5,
			[]time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second}},
		{"single-try", 1, nil, errStatus, false, 1, nil},
		{"default-retries", 0, nil, errNet, false, DefaultMaxRetries,
			[]time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			mock := &transportMock{t: t, script: c.script, fallback: c.fallback}
			m := metrics.New()
			client := NewClient(log2.NewTest(t, log2.LDebug), mock, RetryConfig{MaxRetries: c.maxRetries, BackoffBase: 2 * time.Second}, m)
			sleeper := &sleepRecorder{}
			client.SetSleep(sleeper.Sleep)

			ok := client.Send(context.Background(), testReading("s1"))
			assert.Equal(t, c.expectOk, ok)
			assert.Equal(t, c.expectTries, mock.attempts())
			assert.Equal(t, c.expectSleeps, sleeper.Sleeps())
			assert.Equal(t, float64(c.expectTries), testutil.ToFloat64(m.Attempts))
			for _, p := range mock.sent {
				assert.Equal(t, "s1", decodeSeq(t, p))
			}
			if c.expectOk {
				assert.Equal(t, 1.0, testutil.ToFloat64(m.Delivered))
			} else {
				assert.Equal(t, 1.0, testutil.ToFloat64(m.Failed))
			}
		})
	}
}

func TestClientCancel(t *testing.T) {
	t.Parallel()

	mock := &transportMock{t: t, fallback: fmt.Errorf("timeout")}
	client := NewClient(log2.NewTest(t, log2.LDebug), mock, RetryConfig{MaxRetries: 5, BackoffBase: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	client.SetSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	})
	assert.False(t, client.Send(ctx, testReading("s1")))
	assert.Equal(t, 1, mock.attempts(), "cancelled backoff must stop retries")

	mock2 := &transportMock{t: t}
	client2 := NewClient(log2.NewTest(t, log2.LDebug), mock2, RetryConfig{}, nil)
	assert.False(t, client2.Send(ctx, testReading("s2")))
	assert.Equal(t, 0, mock2.attempts())
}

func TestClientRealSleep(t *testing.T) {
	t.Parallel()

	mock := &transportMock{t: t, script: []error{fmt.Errorf("e1"), fmt.Errorf("e2")}}
	client := NewClient(log2.NewTest(t, log2.LDebug), mock, RetryConfig{MaxRetries: 3, BackoffBase: 10 * time.Millisecond}, nil)
	tbegin := time.Now()
	require.True(t, client.Send(context.Background(), testReading("s1")))
	assert.GreaterOrEqual(t, int64(time.Since(tbegin)), int64(30*time.Millisecond))
}
