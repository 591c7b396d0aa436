// tlink-emu runs a local drone emulator so the daemon and CLI can be
// exercised without hardware. Point tlink-controld at it with
// --drone.addr=127.0.0.1 --drone.command-port=<port>.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tellolink/tellolink/internal/emulator"
	"github.com/tellolink/tellolink/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		addr    string
		battery int
		logOpts = log.NewOptions()
	)

	cmd := &cobra.Command{
		Use:           "tlink-emu",
		Short:         "A local drone emulator speaking the text command protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Init(logOpts)

			emu, err := emulator.New(addr, log.Std())
			if err != nil {
				return err
			}
			defer emu.Close()
			emu.SetBattery(battery)

			log.Info("emulator running, press Ctrl-C to stop", "addr", emu.Addr().String())
			<-cmd.Context().Done()
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&addr, "addr", "0.0.0.0:8889", "UDP address to listen on.")
	fs.IntVar(&battery, "battery", 87, "Battery percentage reported by the emulator.")
	logOpts.AddFlags(fs)

	return cmd
}
