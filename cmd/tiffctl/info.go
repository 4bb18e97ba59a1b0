package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/geoslide/tiffcore/reader"
)

func newInfoCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "print every IFD's tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bs, f, err := openFileBackend(args[0], os.O_RDONLY)
			if err != nil {
				return err
			}
			defer f.Close()

			r, err := reader.Open(bs, reader.ModeValidTIFF, reader.WithLogger(newLogger(verbose)))
			if err != nil {
				return err
			}
			ifds, err := r.AllIFDs()
			if err != nil {
				return err
			}
			h := r.Header()
			fmt.Printf("order=%s bigtiff=%t ifds=%d\n", h.Order, h.BigTiff, len(ifds))
			for i, d := range ifds {
				fmt.Printf("--- IFD %d ---\n%s\n", i, d.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable structured logging")
	return cmd
}
