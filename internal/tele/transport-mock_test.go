package tele

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/radmon/devclient/internal/reading"
	tele_config "github.com/radmon/devclient/internal/tele/config"
	"github.com/radmon/devclient/log2"
)

// transportMock returns scripted results per attempt, then fallback.
type transportMock struct {
	t        testing.TB
	mu       sync.Mutex
	script   []error
	fallback error
	sent     [][]byte
	closed   bool
}

func (self *transportMock) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	return nil
}

func (self *transportMock) SendReading(ctx context.Context, payload []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.sent = append(self.sent, copyBytes(payload))
	err := self.fallback
	if len(self.script) > 0 {
		err, self.script = self.script[0], self.script[1:]
	}
	self.t.Logf("mock attempt=%d payload=%s err=%v", len(self.sent), payload, err)
	return err
}

func (self *transportMock) Close() { self.closed = true }

func (self *transportMock) attempts() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.sent)
}

// senderMock fails readings by seq, records every call in order.
type senderMock struct {
	mu     sync.Mutex
	fail   map[string]bool
	calls  []string
	onSend func(r reading.Reading)
}

func (self *senderMock) Send(ctx context.Context, r reading.Reading) bool {
	self.mu.Lock()
	self.calls = append(self.calls, r.Seq())
	onSend := self.onSend
	failed := self.fail[r.Seq()]
	self.mu.Unlock()
	if onSend != nil {
		onSend(r)
	}
	if ctx.Err() != nil {
		return false
	}
	return !failed
}

func (self *senderMock) Calls() []string {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]string(nil), self.calls...)
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (self *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	self.mu.Lock()
	self.sleeps = append(self.sleeps, d)
	self.mu.Unlock()
	return ctx.Err()
}

func (self *sleepRecorder) Sleeps() []time.Duration {
	self.mu.Lock()
	defer self.mu.Unlock()
	return append([]time.Duration(nil), self.sleeps...)
}

// seqProducer emits readings with given seqs in order
func seqProducer(seqs ...string) reading.Producer {
	i := 0
	return reading.ProducerFunc(func() reading.Reading {
		seq := seqs[i%len(seqs)]
		i++
		return testReading(seq)
	})
}

func testReading(seq string) reading.Reading {
	return reading.Reading{
		MeasuredAt: "2024-03-01T10:30:45.123Z",
		Value:      0.25,
		Unit:       reading.DefaultUnit,
		Metadata:   reading.Metadata{Seq: seq, Simulator: true},
	}
}

func decodeSeq(t testing.TB, payload []byte) string {
	var r reading.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		t.Fatal(err)
	}
	return r.Seq()
}

// split send/receive buffer identity for safe concurrent access
func copyBytes(b []byte) []byte {
	new := make([]byte, len(b))
	copy(new, b)
	return new
}
