package state

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/radmon/devclient/helpers"
	"github.com/radmon/devclient/internal/reading"
	tele_config "github.com/radmon/devclient/internal/tele/config"
	"github.com/radmon/devclient/log2"
)

// ErrNoToken is fatal before any storage or network activity.
var ErrNoToken = errors.NewNotValid(nil, "device token is not set, use tele.device_token or env DEVICE_TOKEN")

const (
	DefaultURL          = "http://localhost:3000/api/readings"
	DefaultBufferFile   = "buffer.json"
	DefaultDeviceId     = "sim-1"
	DefaultMqttBroker   = "tcp://localhost:1883"
	DefaultIntervalSec  = 5
	DefaultMaxRetries   = 5
	DefaultBackoffSec   = 2
	DefaultTimeoutSec   = 10
	DefaultTopicPrefix  = "radmon"
	DefaultConfigSource = "devclient.hcl"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Tele   tele_config.Config `hcl:"tele"`
	Sensor struct {
		Unit     string  `hcl:"unit"`
		ValueMin float64 `hcl:"value_min"`
		ValueMax float64 `hcl:"value_max"`
	} `hcl:"sensor"`
	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`
	Metrics struct {
		Listen string `hcl:"listen"`
	} `hcl:"metrics"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads sources in order, later values win. Includes are relative to first source.
// Environment overrides and defaults are not applied here, see ApplyEnv and SetDefaults.
func ReadConfig(log *log2.Log, fs FullReader, sources ...ConfigSource) (*Config, error) {
	if osfs, ok := fs.(*OsFullReader); ok && len(sources) != 0 {
		dir, name := filepath.Split(sources[0].Name)
		osfs.SetBase(dir)
		sources[0].Name = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, source := range sources {
		c.read(log, fs, source, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, sources ...ConfigSource) *Config {
	c, err := ReadConfig(log, fs, sources...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

// LookupFunc has signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides file values with non-empty environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	errs := make([]error, 0, 4)
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, errors.NotValidf("env %s=%q", key, v))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, errors.NotValidf("env %s=%q", key, v))
				return
			}
			*dst = i
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, errors.NotValidf("env %s=%q", key, v))
				return
			}
			*dst = b
		}
	}

	str("API_URL", &c.Tele.URL)
	str("DEVICE_TOKEN", &c.Tele.DeviceToken)
	str("DEVICE_ID", &c.Tele.DeviceId)
	str("TRANSPORT", &c.Tele.Transport)
	str("MQTT_BROKER", &c.Tele.MqttBroker)
	str("BUFFER_FILE", &c.Tele.BufferFile)
	float("INTERVAL", &c.Tele.IntervalSec)
	integer("MAX_RETRIES", &c.Tele.MaxRetries)
	float("BACKOFF_BASE", &c.Tele.BackoffBaseSec)
	integer("NETWORK_TIMEOUT", &c.Tele.NetworkTimeoutSec)
	boolean("LOG_DEBUG", &c.Tele.LogDebug)
	str("PERSIST_ROOT", &c.Persist.Root)
	str("METRICS_LISTEN", &c.Metrics.Listen)
	return helpers.FoldErrors(errs)
}

// SetDefaults fills zero values. Negative values are left for Validate.
func (c *Config) SetDefaults() {
	t := &c.Tele
	if t.URL == "" {
		t.URL = DefaultURL
	}
	if t.Transport == "" {
		t.Transport = tele_config.TransportHTTP
	}
	if t.DeviceId == "" {
		t.DeviceId = DefaultDeviceId
	}
	if t.MqttBroker == "" {
		t.MqttBroker = DefaultMqttBroker
	}
	if t.MqttTopicPrefix == "" {
		t.MqttTopicPrefix = DefaultTopicPrefix
	}
	if t.BufferFile == "" {
		t.BufferFile = DefaultBufferFile
	}
	if t.IntervalSec == 0 {
		t.IntervalSec = DefaultIntervalSec
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = DefaultMaxRetries
	}
	if t.BackoffBaseSec == 0 {
		t.BackoffBaseSec = DefaultBackoffSec
	}
	if t.NetworkTimeoutSec == 0 {
		t.NetworkTimeoutSec = DefaultTimeoutSec
	}
	if c.Sensor.Unit == "" {
		c.Sensor.Unit = reading.DefaultUnit
	}
	if c.Sensor.ValueMin == 0 && c.Sensor.ValueMax == 0 {
		c.Sensor.ValueMin, c.Sensor.ValueMax = reading.DefaultValueMin, reading.DefaultValueMax
	}
}

// Validate returns ErrNoToken as is, so caller may compare.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Tele.DeviceToken) == "" {
		return ErrNoToken
	}
	errs := make([]error, 0, 4)
	switch c.Tele.Transport {
	case "", tele_config.TransportHTTP, tele_config.TransportMqtt:
	default:
		errs = append(errs, errors.NotValidf("tele.transport=%s", c.Tele.Transport))
	}
	if c.Tele.IntervalSec < 0 {
		errs = append(errs, errors.NotValidf("tele.interval_sec=%v", c.Tele.IntervalSec))
	}
	if c.Tele.MaxRetries < 0 {
		errs = append(errs, errors.NotValidf("tele.max_retries=%d", c.Tele.MaxRetries))
	}
	if c.Tele.BackoffBaseSec < 0 {
		errs = append(errs, errors.NotValidf("tele.backoff_base_sec=%v", c.Tele.BackoffBaseSec))
	}
	if c.Tele.NetworkTimeoutSec < 0 {
		errs = append(errs, errors.NotValidf("tele.network_timeout_sec=%d", c.Tele.NetworkTimeoutSec))
	}
	if c.Sensor.ValueMin > c.Sensor.ValueMax {
		errs = append(errs, errors.NotValidf("sensor value_min=%v > value_max=%v", c.Sensor.ValueMin, c.Sensor.ValueMax))
	}
	return helpers.FoldErrors(errs)
}

// String omits secrets.
func (c *Config) String() string {
	t := &c.Tele
	return fmt.Sprintf("transport=%s url=%s device=%s buffer=%s interval=%vs retries=%d backoff=%vs timeout=%ds persist=%q metrics=%q",
		t.Transport, t.URL, t.DeviceId, t.BufferFile, t.IntervalSec, t.MaxRetries, t.BackoffBaseSec, t.NetworkTimeoutSec,
		c.Persist.Root, c.Metrics.Listen)
}
