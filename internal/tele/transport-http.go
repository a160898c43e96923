package tele

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/juju/errors"
	"github.com/radmon/devclient/helpers"
	tele_config "github.com/radmon/devclient/internal/tele/config"
	"github.com/radmon/devclient/log2"
)

const (
	HeaderDeviceToken = "Device-Token"
	maxResponseBody   = 64 << 10
)

type transportHTTP struct {
	log    *log2.Log
	url    string
	token  string
	client *http.Client

	// test code sets roundTripper
	roundTripper http.RoundTripper
}

// optional part of collection endpoint reply
type serverReply struct {
	Message string `json:"message"`
	Alert   *struct {
		Id      interface{} `json:"id"`
		Level   string      `json:"level"`
		Message string      `json:"message"`
	} `json:"alert"`
}

func (self *transportHTTP) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.log = log
	if _, err := url.ParseRequestURI(teleConfig.URL); err != nil {
		return errors.Annotatef(err, "tele url=%s", teleConfig.URL)
	}
	self.url = teleConfig.URL
	self.token = teleConfig.DeviceToken

	rt := self.roundTripper
	if rt == nil { // production path
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}
	// one client for process lifetime, keeps connections alive between readings
	self.client = &http.Client{
		Timeout:   helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout),
		Transport: rt,
	}
	return nil
}

func (self *transportHTTP) SendReading(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, self.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Annotate(err, "tele http request")
	}
	req.Header.Set(HeaderDeviceToken, self.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := self.client.Do(req)
	if err != nil {
		return errors.Annotate(err, "tele http")
	}
	body, readErr := ioutil.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if readErr != nil {
			self.log.Debugf("tele http status=%d body read err=%v", resp.StatusCode, readErr)
		}
		self.onReply(body)
		return nil
	}
	return errors.Errorf("server returned status=%d body=%s", resp.StatusCode, truncate(body, 200))
}

func (self *transportHTTP) Close() {
	if self.client != nil {
		self.client.CloseIdleConnections()
	}
}

func (self *transportHTTP) onReply(body []byte) {
	if len(body) == 0 {
		return
	}
	var reply serverReply
	if err := json.Unmarshal(body, &reply); err != nil {
		self.log.Debugf("tele http reply is not json err=%v", err)
		return
	}
	if reply.Alert != nil {
		self.log.Infof("server alert id=%v level=%s message=%s", reply.Alert.Id, reply.Alert.Level, reply.Alert.Message)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
