package tele

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/atomic_clock"
)

// Stat survives restarts via persist, see state.Global.
type Stat struct { //nolint:maligned
	sync.Mutex
	Delivered uint64
	Failed    uint64
	Buffered  uint64
	Cycles    uint64
	LastSeq   string

	lastDelivered atomic_clock.Clock
	changed       bool
}

type statWire struct {
	Delivered         uint64 `json:"delivered"`
	Failed            uint64 `json:"failed"`
	Buffered          uint64 `json:"buffered"`
	Cycles            uint64 `json:"cycles"`
	LastSeq           string `json:"last_seq,omitempty"`
	LastDeliveredNano int64  `json:"last_delivered_ns,omitempty"`
}

func (self *Stat) LastDelivered() time.Time {
	if self.lastDelivered.IsZero() {
		return time.Time{}
	}
	return time.Unix(0, self.lastDelivered.UnixNano())
}

func (self *Stat) onDelivered(seq string) {
	self.Lock()
	self.Delivered++
	self.LastSeq = seq
	self.changed = true
	self.Unlock()
	self.lastDelivered.SetNow()
}

func (self *Stat) onFailed(buffered bool) {
	self.Lock()
	self.Failed++
	if buffered {
		self.Buffered++
	}
	self.changed = true
	self.Unlock()
}

func (self *Stat) onCycle() {
	self.Lock()
	self.Cycles++
	self.Unlock()
}

// takeChanged reports and clears modification flag.
func (self *Stat) takeChanged() bool {
	self.Lock()
	defer self.Unlock()
	c := self.changed
	self.changed = false
	return c
}

func (self *Stat) MarshalBinary() ([]byte, error) {
	self.Lock()
	w := statWire{
		Delivered:         self.Delivered,
		Failed:            self.Failed,
		Buffered:          self.Buffered,
		Cycles:            self.Cycles,
		LastSeq:           self.LastSeq,
		LastDeliveredNano: self.lastDelivered.UnixNano(),
	}
	self.Unlock()
	return json.Marshal(w)
}

func (self *Stat) UnmarshalBinary(b []byte) error {
	var w statWire
	if err := json.Unmarshal(b, &w); err != nil {
		return errors.Annotate(err, "tele stat decode")
	}
	self.Lock()
	self.Delivered = w.Delivered
	self.Failed = w.Failed
	self.Buffered = w.Buffered
	self.Cycles = w.Cycles
	self.LastSeq = w.LastSeq
	self.Unlock()
	self.lastDelivered.Set(w.LastDeliveredNano)
	return nil
}
