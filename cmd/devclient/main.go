package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	cmd_buffer "github.com/radmon/devclient/cmd/devclient/buffer"
	cmd_run "github.com/radmon/devclient/cmd/devclient/run"
	"github.com/radmon/devclient/cmd/devclient/subcmd"
	"github.com/radmon/devclient/internal/state"
	state_new "github.com/radmon/devclient/internal/state/new"
	"github.com/radmon/devclient/log2"
)

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	cmd_run.Mod,
	cmd_buffer.Mod,
}

var BuildVersion string = "unknown" // set by ldflags -X

func main() {
	flagset := flag.NewFlagSet("devclient", flag.ExitOnError)
	flagConfig := flagset.String("config", "", "config file, default "+state.DefaultConfigSource+" when present")
	flagEnv := flagset.String("env", ".env", "dotenv file, missing is ignored")
	flagset.Usage = func() {
		fmt.Fprintf(flagset.Output(), "Usage: %s [options] [command]\nCommands: run (default), buffer\nOptions:\n", os.Args[0])
		flagset.PrintDefaults()
	}
	_ = flagset.Parse(os.Args[1:])

	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	} else {
		// assume systemd journal or other collector with own timestamps
		log.SetFlags(log2.LServiceFlags)
	}

	command := flagset.Arg(0)
	if command == "" {
		command = cmd_run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Errorf("%v", err)
		flagset.Usage()
		os.Exit(subcmd.ExitError)
	}

	config, err := readConfig(*flagConfig, *flagEnv)
	if err != nil {
		log.Error(errors.ErrorStack(err))
		os.Exit(subcmd.ExitError)
	}

	ctx, g := state_new.NewContext(log, nil)
	g.BuildVersion = BuildVersion
	err = mod.Main(ctx, config)
	code := subcmd.ExitCode(err)
	switch code {
	case subcmd.ExitOk:
	case subcmd.ExitNoToken:
		log.Errorf("%v", errors.Cause(err))
	default:
		log.Error(errors.ErrorStack(err))
	}
	os.Exit(code)
}

// readConfig order: dotenv into process env, config file, env overrides.
func readConfig(path, envPath string) (*state.Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Annotatef(err, "dotenv path=%s", envPath)
		}
	}

	source := state.ConfigSource{Name: path}
	if path == "" {
		source = state.ConfigSource{Name: state.DefaultConfigSource, Optional: true}
	}
	config, err := state.ReadConfig(log, state.NewOsFullReader(), source)
	if err != nil {
		return nil, err
	}
	if err = config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return config, nil
}
