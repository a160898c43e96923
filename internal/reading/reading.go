// Package reading defines one dosimeter measurement record and its producers.
package reading

import (
	"encoding/json"
	"time"

	"github.com/juju/errors"
)

// TimeLayout is UTC ISO-8601 with millisecond precision and trailing Z.
const TimeLayout = "2006-01-02T15:04:05.000Z"

const DefaultUnit = "µSv/h"

// Reading is immutable once produced. JSON field names are the server wire format.
type Reading struct {
	MeasuredAt string   `json:"measured_at"`
	Value      float64  `json:"value"`
	Unit       string   `json:"unit"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata carries receiver dedup key `seq` and synthetic origin flag.
// Unknown keys and wrong-typed seq/simulator survive decode/encode in Extra byte-exact.
type Metadata struct {
	Seq       string
	Simulator bool
	Extra     map[string]json.RawMessage
}

func (r *Reading) Seq() string { return r.Metadata.Seq }

func (r *Reading) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.MeasuredAt)
}

func (r *Reading) Validate() error {
	if r.Metadata.Seq == "" {
		return errors.NotValidf("reading metadata.seq=empty")
	}
	if r.Unit == "" {
		return errors.NotValidf("reading seq=%s unit=empty", r.Metadata.Seq)
	}
	if _, err := r.Time(); err != nil {
		return errors.NewNotValid(err, "reading seq="+r.Metadata.Seq+" measured_at")
	}
	return nil
}

func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	// wrong-typed seq/simulator from file stay in Extra until replaced by real value
	if _, ok := out["seq"]; !ok || m.Seq != "" {
		b, err := json.Marshal(m.Seq)
		if err != nil {
			return nil, err
		}
		out["seq"] = b
	}
	if _, ok := out["simulator"]; !ok || m.Simulator {
		b, err := json.Marshal(m.Simulator)
		if err != nil {
			return nil, err
		}
		out["simulator"] = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON never fails on value types inside metadata object,
// so one odd entry does not lose the whole buffer.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		switch k {
		case "seq":
			if string(v) != "null" && json.Unmarshal(v, &m.Seq) == nil {
				continue
			}
		case "simulator":
			if string(v) != "null" && json.Unmarshal(v, &m.Simulator) == nil {
				continue
			}
		}
		if m.Extra == nil {
			m.Extra = make(map[string]json.RawMessage)
		}
		m.Extra[k] = v
	}
	return nil
}
