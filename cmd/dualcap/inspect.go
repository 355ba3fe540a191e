package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bft-labs/dualcap/internal/inspect"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <session-dir>",
		Short: "Decode a session's logs and report counts, time span and integrity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := inspect.Session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rep.Write(os.Stdout)
			if !rep.Clean() {
				return fmt.Errorf("%s: log parts do not decode cleanly", args[0])
			}
			return nil
		},
	}
}
