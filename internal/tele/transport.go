package tele

import (
	"context"

	"github.com/juju/errors"
	tele_config "github.com/radmon/devclient/internal/tele/config"
	"github.com/radmon/devclient/log2"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - SendReading is exactly one network attempt bounded by network timeout, no retries
// - nil error means receiver acknowledged; any error is retryable, text is diagnostic only
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error
	SendReading(ctx context.Context, payload []byte) error
	Close()
}

func NewTransporter(kind string) (Transporter, error) {
	switch kind {
	case "", tele_config.TransportHTTP:
		return &transportHTTP{}, nil
	case tele_config.TransportMqtt:
		return &transportMqtt{}, nil
	}
	return nil, errors.NotValidf("tele transport=%s", kind)
}
