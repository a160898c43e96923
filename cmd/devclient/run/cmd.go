package run

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/radmon/devclient/cmd/devclient/subcmd"
	"github.com/radmon/devclient/internal/state"
	"golang.org/x/sys/unix"
)

var Mod = subcmd.Mod{Name: "run", Main: Main}

const stopTimeout = 5 * time.Second

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	// not MustInit, missing token needs distinct exit code
	if err := g.Init(ctx, config); err != nil {
		return errors.Annotate(err, "init")
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case sig := <-sigs:
			g.Log.Infof("signal=%v, saving buffer and exiting", sig)
			subcmd.SdNotify(g.Log, daemon.SdNotifyStopping)
			g.Stop()
		case <-g.Alive.StopChan():
		}
	}()

	subcmd.SdNotify(g.Log, daemon.SdNotifyReady)
	g.Log.Debugf("init complete, running")
	err := g.Run(ctx)
	if !g.StopWait(stopTimeout) {
		g.Log.Errorf("stop timeout=%v", stopTimeout)
	}
	return errors.Annotate(err, "run")
}
