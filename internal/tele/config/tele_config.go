// Separate package is workaround to import cycles.
package tele_config

const (
	TransportHTTP = "http"
	TransportMqtt = "mqtt"
)

type Config struct { //nolint:maligned
	URL               string  `hcl:"url"`
	DeviceToken       string  `hcl:"device_token"` // secret
	DeviceId          string  `hcl:"device_id"`
	Transport         string  `hcl:"transport"`
	MqttBroker        string  `hcl:"mqtt_broker"`
	MqttTopicPrefix   string  `hcl:"mqtt_topic_prefix"`
	MqttLogDebug      bool    `hcl:"mqtt_log_debug"`
	BufferFile        string  `hcl:"buffer_file"`
	IntervalSec       float64 `hcl:"interval_sec"`
	MaxRetries        int     `hcl:"max_retries"`
	BackoffBaseSec    float64 `hcl:"backoff_base_sec"`
	NetworkTimeoutSec int     `hcl:"network_timeout_sec"`
	LogDebug          bool    `hcl:"log_debug"`
}
