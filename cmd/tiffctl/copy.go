package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/geoslide/tiffcore/copier"
	"github.com/geoslide/tiffcore/reader"
	"github.com/geoslide/tiffcore/writer"
)

func newCopyCommand() *cobra.Command {
	var recompress uint16
	var rectFlag string
	var direct bool
	var verbose bool
	cmd := &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "copy every IFD of src into a new dst, verbatim or recompressing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rect, err := parseRect(rectFlag)
			if err != nil {
				return err
			}

			srcBS, srcFile, err := openFileBackend(args[0], os.O_RDONLY)
			if err != nil {
				return err
			}
			defer srcFile.Close()

			logger := newLogger(verbose)
			r, err := reader.Open(srcBS, reader.ModeValidTIFF, reader.WithLogger(logger))
			if err != nil {
				return err
			}

			dstBS, dstFile, err := openFileBackend(args[1], os.O_RDWR|os.O_CREATE|os.O_TRUNC)
			if err != nil {
				return err
			}
			defer dstFile.Close()

			h := r.Header()
			w, err := writer.Create(dstBS, h.BigTiff, h.Order, writer.WithLogger(logger))
			if err != nil {
				return err
			}

			opts := []copier.Option{
				copier.WithLogger(logger),
				copier.WithDirectCopy(direct && rect == nil && recompress == 0),
			}
			if recompress != 0 {
				opts = append(opts, copier.WithRecompressCode(recompress))
			}
			c := copier.New(opts...)

			all, err := r.AllIFDs()
			if err != nil {
				return err
			}
			for i := range all {
				if err := c.CopyImage(cmd.Context(), w, r, i, rect); err != nil {
					return fmt.Errorf("copy IFD %d: %w", i, err)
				}
			}
			return w.Close()
		},
	}
	cmd.Flags().Uint16Var(&recompress, "recompress", 0, "destination compression code (0 keeps the source's own)")
	cmd.Flags().StringVar(&rectFlag, "rect", "", "crop to x,y,w,h instead of copying the whole image")
	cmd.Flags().BoolVar(&direct, "direct", true, "copy tile bytes verbatim when source and destination byte order/BigTIFF-ness match")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable structured logging")
	return cmd
}

func parseRect(s string) (*copier.Rect, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("--rect wants x,y,w,h, got %q", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("--rect: %w", err)
		}
		vals[i] = n
	}
	return &copier.Rect{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, nil
}
