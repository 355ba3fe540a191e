package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bft-labs/dualcap"
	"github.com/bft-labs/dualcap/internal/cliconfig"
	"github.com/bft-labs/dualcap/pkg/log"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List serial ports and audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			serialPorts, err := dualcap.SerialPorts()
			if err != nil {
				return fmt.Errorf("list serial ports: %w", err)
			}
			fmt.Fprintln(w, "SERIAL PORT\tDESCRIPTION\tVID:PID\tSERIAL")
			for _, p := range serialPorts {
				fmt.Fprintf(w, "%s\t%s\t%s:%s\t%s\n", p.Name, p.Description, p.VID, p.PID, p.SerialNumber)
			}
			fmt.Fprintln(w)

			logger := log.NewZerologAdapterWithLogger(cliconfig.Logger(zerolog.WarnLevel))
			devices, err := dualcap.AudioDevices(logger)
			if err != nil {
				return fmt.Errorf("list audio devices: %w", err)
			}
			fmt.Fprintln(w, "AUDIO\tNAME\tDEFAULT\tFORMATS")
			for _, d := range devices {
				fmt.Fprintf(w, "%d\t%s\t%v\t%d\n", d.Index, d.Name, d.IsDefault, len(d.Formats))
			}
			return nil
		},
	}
}
