package tele

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radmon/devclient/helpers"
	"github.com/radmon/devclient/internal/metrics"
	"github.com/radmon/devclient/internal/reading"
	"github.com/radmon/devclient/log2"
)

const (
	DefaultMaxRetries     = 5
	DefaultBackoffBase    = 2 * time.Second
	DefaultNetworkTimeout = 10 * time.Second
)

type RetryConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
}

// Sender delivers one reading, true means acknowledged by receiver.
type Sender interface {
	Send(ctx context.Context, r reading.Reading) bool
}

// Client contract:
// - at most MaxRetries transport attempts per Send, exactly one if first succeeds
// - after failed attempt k, if attempts remain, sleep k*BackoffBase
// - no sleep after the last attempt, worst case backoff per Send is BackoffBase*MaxRetries*(MaxRetries-1)/2,
//   20s with defaults 5 and 2s
// - every failure kind is retried the same way (transport error, any non 200/201 status)
// - never panics or returns error, failures are only logged
// - context cancellation aborts backoff sleep, result is false
type Client struct {
	log        *log2.Log
	transport  Transporter
	backoff    helpers.LinearBackoff
	maxRetries int
	sleep      helpers.SleepFunc
	metrics    *metrics.Metrics
}

func NewClient(log *log2.Log, transport Transporter, rc RetryConfig, m *metrics.Metrics) *Client {
	if rc.MaxRetries <= 0 {
		rc.MaxRetries = DefaultMaxRetries
	}
	if rc.BackoffBase < 0 {
		rc.BackoffBase = 0
	}
	return &Client{
		log:        log,
		transport:  transport,
		backoff:    helpers.LinearBackoff{Unit: rc.BackoffBase},
		maxRetries: rc.MaxRetries,
		sleep:      helpers.SleepCtx,
		metrics:    m,
	}
}

// SetSleep replaces backoff sleep, nil restores default.
func (self *Client) SetSleep(f helpers.SleepFunc) {
	if f == nil {
		f = helpers.SleepCtx
	}
	self.sleep = f
}

func (self *Client) Send(ctx context.Context, r reading.Reading) bool {
	tbegin := time.Now()
	ok := self.send(ctx, r)
	self.metrics.ObserveSend(ok, time.Since(tbegin))
	return ok
}

func (self *Client) send(ctx context.Context, r reading.Reading) bool {
	payload, err := json.Marshal(r)
	if err != nil {
		self.log.Errorf("CRITICAL reading Marshal seq=%s err=%v", r.Seq(), err)
		return false
	}

	for attempt := 1; attempt <= self.maxRetries; attempt++ {
		if ctx.Err() != nil {
			self.log.Debugf("tele send seq=%s aborted before attempt=%d", r.Seq(), attempt)
			return false
		}
		self.metrics.IncAttempt()
		err = self.transport.SendReading(ctx, payload)
		if err == nil {
			self.log.Infof("sent reading seq=%s attempt=%d", r.Seq(), attempt)
			return true
		}
		self.log.Infof("tele send seq=%s attempt=%d/%d err=%v", r.Seq(), attempt, self.maxRetries, err)

		if attempt == self.maxRetries {
			break
		}
		delay := self.backoff.Delay(attempt)
		self.log.Debugf("retrying in %v", delay)
		if err = self.sleep(ctx, delay); err != nil {
			self.log.Debugf("tele send seq=%s backoff interrupted err=%v", r.Seq(), err)
			return false
		}
	}
	self.log.Errorf("tele send seq=%s failed after %d attempts", r.Seq(), self.maxRetries)
	return false
}
