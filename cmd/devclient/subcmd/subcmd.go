// Support sub-commands in devclient application.
// It's simple but fine so far.
package subcmd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/radmon/devclient/internal/state"
	"github.com/radmon/devclient/log2"
)

const (
	ExitOk      = 0
	ExitError   = 1
	ExitNoToken = 2
)

type Mod struct {
	Name string
	Main func(context.Context, *state.Config) error
}

func Parse(command string, modules []Mod) (*Mod, error) {
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	var found *Mod
	for i := range modules {
		m := &modules[i]
		if m.Name == "" {
			panic(fmt.Sprintf("code error Name='' module=%#v", m))
		}
		if command == m.Name {
			found = m
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("unknown command='%s'", command)
	}
	return found, nil
}

// ExitCode maps Main result to process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOk
	case errors.Cause(err) == state.ErrNoToken:
		return ExitNoToken
	}
	return ExitError
}

// SdNotify returns true when running under systemd with notify socket.
// Notify errors are logged, never fatal.
func SdNotify(log *log2.Log, s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Errorf("sdnotify: %s", errors.ErrorStack(err))
	}
	return ok
}
