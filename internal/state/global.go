package state

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/radmon/devclient/helpers"
	"github.com/radmon/devclient/internal/buffer"
	"github.com/radmon/devclient/internal/metrics"
	"github.com/radmon/devclient/internal/reading"
	"github.com/radmon/devclient/internal/state/persist"
	"github.com/radmon/devclient/internal/tele"
	"github.com/radmon/devclient/log2"
	"github.com/temoto/alive/v2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Log          *log2.Log
	Metrics      *metrics.Metrics
	Tele         *tele.Tele

	// optional before Init, for tests
	Transport tele.Transporter
	Producer  reading.Producer

	statPersist persist.Persist
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// Init validates config before touching buffer file, stat storage or network.
// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	g.Log.Infof("build version=%s", g.BuildVersion)

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	tc := cfg.Tele
	if tc.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	g.Log.Infof("config: %s", cfg)

	if g.Metrics == nil {
		g.Metrics = metrics.New()
	}
	g.Log.SetErrorFunc(g.Metrics.OnLogError)

	if g.Transport == nil {
		tr, err := tele.NewTransporter(tc.Transport)
		if err != nil {
			return err
		}
		g.Transport = tr
	}
	transportLevel := log2.LInfo
	if tc.MqttLogDebug {
		transportLevel = log2.LDebug
	}
	if err := g.Transport.Init(ctx, g.Log.Clone(transportLevel), tc); err != nil {
		return errors.Annotate(err, "tele transport init")
	}

	client := tele.NewClient(g.Log, g.Transport, tele.RetryConfig{
		MaxRetries:  tc.MaxRetries,
		BackoffBase: helpers.FloatSecondDefault(tc.BackoffBaseSec, tele.DefaultBackoffBase),
	}, g.Metrics)
	if g.Producer == nil {
		g.Producer = reading.NewSimulator(cfg.Sensor.Unit, cfg.Sensor.ValueMin, cfg.Sensor.ValueMax)
	}
	interval := helpers.FloatSecondDefault(tc.IntervalSec, tele.DefaultInterval)
	g.Tele = tele.New(g.Log, client, g.Producer, buffer.New(tc.BufferFile, g.Log), interval, g.Metrics)

	if err := g.statPersist.Init("tele-stat", g.Tele.Stat(), cfg.Persist.Root, cfg.Persist.Root != "", g.Log); err != nil {
		return errors.Annotate(err, "tele stat")
	}
	if err := g.statPersist.Load(); err != nil {
		// counters start from zero, readings are unaffected
		g.Log.Error(errors.Annotate(err, "tele stat"))
	}
	g.Tele.SetStatStore(g.statPersist.Store)
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// Run blocks until ctx is done or Stop() is called.
// Error means final buffer persist failed.
func (g *Global) Run(ctx context.Context) error {
	if g.Tele == nil {
		panic("code error Global.Run() before Init()")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.Alive.StopChan():
		case <-ctx.Done():
		}
		cancel()
	}()

	// Alive counts only goroutines started while running, Add after Stop is not allowed
	if g.Alive.IsRunning() {
		g.Alive.Add(1)
		defer g.Alive.Done()
		if listen := g.Config.Metrics.Listen; listen != "" {
			g.Alive.Add(1)
			go func() {
				defer g.Alive.Done()
				if err := g.Metrics.Serve(ctx, g.Log, listen); err != nil {
					g.Log.Error(err)
				}
			}()
		}
	}

	err := g.Tele.Run(ctx)
	g.Transport.Close()
	return err
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(err)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
