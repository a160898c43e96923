package tele

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/radmon/devclient/helpers"
	"github.com/radmon/devclient/internal/buffer"
	"github.com/radmon/devclient/internal/metrics"
	"github.com/radmon/devclient/internal/reading"
	"github.com/radmon/devclient/log2"
)

const DefaultInterval = 5 * time.Second

// Tele contract:
// - every cycle: flush buffered readings oldest first, produce one new reading,
//   deliver it, persist buffer if it changed, sleep interval
// - backlog is always attempted before the new reading, never interleaved
// - reading leaves buffer only after Sender reported success
// - cancellation is checked between states; Run persists whatever is retained and returns
// - Run keeps going across any number of delivery failures, buffer is unbounded
type Tele struct {
	log      *log2.Log
	sender   Sender
	producer reading.Producer
	file     *buffer.File
	queue    *buffer.Queue
	interval time.Duration
	sleep    helpers.SleepFunc
	metrics  *metrics.Metrics
	stat     Stat

	// optional, stores stat, called when stat changed
	statStore func() error
}

// New loads buffer file, fail-open.
func New(log *log2.Log, sender Sender, producer reading.Producer, file *buffer.File, interval time.Duration, m *metrics.Metrics) *Tele {
	if interval <= 0 {
		interval = DefaultInterval
	}
	self := &Tele{
		log:      log,
		sender:   sender,
		producer: producer,
		file:     file,
		queue:    buffer.NewQueue(file.Load()),
		interval: interval,
		sleep:    helpers.SleepCtx,
		metrics:  m,
	}
	self.metrics.SetQueueLength(self.queue.Len())
	return self
}

func (self *Tele) Stat() *Stat                  { return &self.stat }
func (self *Tele) SetStatStore(f func() error)  { self.statStore = f }
func (self *Tele) SetSleep(f helpers.SleepFunc) { self.sleep = f }
func (self *Tele) Buffered() []reading.Reading  { return self.queue.Items() }
func (self *Tele) Interval() time.Duration      { return self.interval }

// Run blocks until ctx is done. Error only when final persist failed.
func (self *Tele) Run(ctx context.Context) error {
	self.log.Infof("tele running interval=%v buffered=%d path=%s", self.interval, self.queue.Len(), self.file.Path())
	for {
		self.Cycle(ctx)
		if ctx.Err() != nil {
			break
		}
		if err := self.sleep(ctx, self.interval); err != nil {
			break
		}
	}
	self.log.Infof("tele stopping, buffered=%d", self.queue.Len())
	err := self.persist()
	self.storeStat()
	return err
}

// Cycle runs Flush, Produce, DeliverCurrent and Persist once.
func (self *Tele) Cycle(ctx context.Context) {
	self.stat.onCycle()
	self.flush(ctx)

	if ctx.Err() == nil {
		r := self.producer.Produce()
		if self.sender.Send(ctx, r) {
			self.stat.onDelivered(r.Seq())
		} else {
			self.queue.Push(r)
			self.stat.onFailed(true)
			self.metrics.IncBuffered()
			self.log.Infof("buffered reading seq=%s, buffer size=%d", r.Seq(), self.queue.Len())
		}
	}

	if self.queue.Dirty() {
		_ = self.persist()
	}
	self.metrics.SetQueueLength(self.queue.Len())
	self.storeStat()
}

func (self *Tele) flush(ctx context.Context) {
	n := self.queue.Len()
	if n == 0 || ctx.Err() != nil {
		return
	}
	self.log.Infof("flushing %d buffered readings", n)
	items := self.queue.Items()
	retained := make([]reading.Reading, 0, n)
	for i, r := range items {
		if ctx.Err() != nil {
			retained = append(retained, items[i:]...)
			break
		}
		if self.sender.Send(ctx, r) {
			self.stat.onDelivered(r.Seq())
		} else {
			self.stat.onFailed(false)
			retained = append(retained, r)
		}
	}
	self.queue.Replace(retained)
}

func (self *Tele) persist() error {
	if err := self.file.Persist(self.queue.Items()); err != nil {
		// contents stay in memory, next cycle tries again
		self.metrics.IncPersistError()
		self.log.Error(errors.Annotate(err, "tele buffer"))
		return err
	}
	self.queue.MarkClean()
	return nil
}

func (self *Tele) storeStat() {
	if self.statStore == nil || !self.stat.takeChanged() {
		return
	}
	if err := self.statStore(); err != nil {
		self.log.Errorf("tele stat store err=%v", err)
	}
}
