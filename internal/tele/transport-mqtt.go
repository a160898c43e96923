package tele

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/radmon/devclient/helpers"
	tele_config "github.com/radmon/devclient/internal/tele/config"
	"github.com/radmon/devclient/log2"
)

const defaultTopicPrefix = "radmon"

func TopicReadings(prefix, deviceId string) string {
	return fmt.Sprintf("%s/%s/readings", prefix, deviceId)
}

// QoS 1 publish, success = PUBACK from broker within network timeout.
type transportMqtt struct {
	log     *log2.Log
	m       mqtt.Client
	topic   string
	timeout time.Duration

	// test code sets publish, then broker connection is not used
	publish func(topic string, payload []byte) error
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.log = log
	if teleConfig.DeviceId == "" {
		return errors.NotValidf("tele mqtt device_id=empty")
	}
	prefix := strings.Trim(teleConfig.MqttTopicPrefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	self.topic = TopicReadings(prefix, teleConfig.DeviceId)
	self.timeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	if self.publish != nil {
		return nil
	}

	if _, err := url.ParseRequestURI(teleConfig.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", teleConfig.MqttBroker)
	}
	mqttLog := log.Clone(log2.LInfo)
	if teleConfig.MqttLogDebug {
		mqttLog.SetLevel(log2.LDebug)
		mqtt.DEBUG = mqttLog
	}
	mqtt.ERROR = mqttLog
	mqtt.CRITICAL = mqttLog
	mqtt.WARN = mqttLog

	opts := mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetClientID(teleConfig.DeviceId).
		SetUsername(teleConfig.DeviceId).
		SetPassword(teleConfig.DeviceToken).
		SetCleanSession(true).
		SetConnectTimeout(self.timeout).
		// reconnect on demand in SendReading, keeps one attempt = one network exchange
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			self.log.Infof("tele mqtt connection lost err=%v", err)
		})
	self.m = mqtt.NewClient(opts)
	self.publish = self.mqttPublish
	return nil
}

func (self *transportMqtt) SendReading(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return self.publish(self.topic, payload)
}

func (self *transportMqtt) Close() {
	if self.m != nil && self.m.IsConnected() {
		self.m.Disconnect(250)
	}
}

func (self *transportMqtt) mqttPublish(topic string, payload []byte) error {
	if !self.m.IsConnected() {
		tok := self.m.Connect()
		if !tok.WaitTimeout(self.timeout) {
			return errors.Timeoutf("tele mqtt connect")
		}
		if err := tok.Error(); err != nil {
			return errors.Annotate(err, "tele mqtt connect")
		}
		self.log.Debugf("tele mqtt connected")
	}
	tok := self.m.Publish(topic, 1, false, payload)
	if !tok.WaitTimeout(self.timeout) {
		return errors.Timeoutf("tele mqtt publish topic=%s", topic)
	}
	return errors.Annotatef(tok.Error(), "tele mqtt publish topic=%s", topic)
}
