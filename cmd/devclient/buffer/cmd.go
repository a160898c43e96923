// Offline inspection of buffer file, no network.
package buffer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/radmon/devclient/cmd/devclient/subcmd"
	"github.com/radmon/devclient/internal/buffer"
	"github.com/radmon/devclient/internal/reading"
	"github.com/radmon/devclient/internal/state"
)

var Mod = subcmd.Mod{Name: "buffer", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.SetDefaults()
	items := buffer.New(config.Tele.BufferFile, g.Log).Load()
	return Print(os.Stdout, config.Tele.BufferFile, items)
}

func Print(w io.Writer, path string, items []reading.Reading) error {
	for i := range items {
		r := &items[i]
		note := ""
		if err := r.Validate(); err != nil {
			note = " invalid: " + err.Error()
		}
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%v %s%s\n", i+1, r.Seq(), r.MeasuredAt, r.Value, r.Unit, note); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "buffered=%d path=%s\n", len(items), path)
	return err
}
