package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/geoslide/tiffcore/writer"
)

func newSetDescriptionCommand() *cobra.Command {
	var ifdIndex int
	var text string
	var keepLength bool
	var verbose bool
	cmd := &cobra.Command{
		Use:   "set-description <file>",
		Short: "rewrite one IFD's ImageDescription tag in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bs, f, err := openFileBackend(args[0], os.O_RDWR)
			if err != nil {
				return err
			}
			defer f.Close()

			w, err := writer.OpenExisting(bs, writer.WithLogger(newLogger(verbose)))
			if err != nil {
				return err
			}
			if err := w.WriteDescription(ifdIndex, text, keepLength); err != nil {
				return err
			}
			return w.Close()
		},
	}
	cmd.Flags().IntVar(&ifdIndex, "ifd", 0, "index of the IFD to edit")
	cmd.Flags().StringVar(&text, "text", "", "new ImageDescription text")
	cmd.Flags().BoolVar(&keepLength, "keep-length", false, "fail instead of relocating the IFD if text no longer fits")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable structured logging")
	cmd.MarkFlagRequired("text")
	return cmd
}
