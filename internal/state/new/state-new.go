// Sorry, workaround to import cycles.
package state_new

import (
	"context"
	"os"
	"testing"

	"github.com/radmon/devclient/internal/state"
	"github.com/radmon/devclient/internal/tele"
	"github.com/radmon/devclient/log2"
	"github.com/temoto/alive/v2"
)

func NewContext(log *log2.Log, transport tele.Transporter) (context.Context, *state.Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &state.Global{
		Alive:     alive.NewAlive(),
		Log:       log,
		Transport: transport,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, state.ContextKey, g)

	return ctx, g
}

// NewTestContext reads confString as the only config source, no env.
// Nil transport selects one by config, usually you want a mock.
func NewTestContext(t testing.TB, buildVersion string, confString string, transport tele.Transporter) (context.Context, *state.Global) {
	fs := state.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("devclient_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, transport)
	g.BuildVersion = buildVersion
	g.MustInit(ctx, state.MustReadConfig(log, fs, state.ConfigSource{Name: "test-inline"}))

	return ctx, g
}
