package reading

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Producer is the measurement source. Real sensor driver goes here.
type Producer interface {
	Produce() Reading
}

type ProducerFunc func() Reading

func (f ProducerFunc) Produce() Reading { return f() }

// Simulator generates plausible dose rate values.
type Simulator struct {
	Unit     string
	ValueMin float64
	ValueMax float64

	// test hooks, nil means real source
	Now  func() time.Time
	Rand *rand.Rand
	Seq  func() string

	mu sync.Mutex
}

const (
	DefaultValueMin = 0.01
	DefaultValueMax = 12.0
)

func NewSimulator(unit string, min, max float64) *Simulator {
	if unit == "" {
		unit = DefaultUnit
	}
	if min == 0 && max == 0 {
		min, max = DefaultValueMin, DefaultValueMax
	}
	if max < min {
		min, max = max, min
	}
	return &Simulator{
		Unit:     unit,
		ValueMin: min,
		ValueMax: max,
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (self *Simulator) Produce() Reading {
	now := time.Now
	if self.Now != nil {
		now = self.Now
	}
	seq := self.Seq
	if seq == nil {
		seq = uuid.NewString
	}

	self.mu.Lock()
	var f float64
	if self.Rand != nil {
		f = self.Rand.Float64()
	} else {
		f = rand.Float64()
	}
	self.mu.Unlock()
	value := round3(self.ValueMin + f*(self.ValueMax-self.ValueMin))

	return Reading{
		MeasuredAt: FormatTime(now()),
		Value:      value,
		Unit:       self.Unit,
		Metadata: Metadata{
			Seq:       seq(),
			Simulator: true,
		},
	}
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
