// Command tiffctl is a small cobra-based front end over this module's
// Reader/Writer/Copier, grounded on the teacher's flag-based cmd/cogger
// main and upgraded to cobra the way cmd/tiler already is.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geoslide/tiffcore/bytestream"
	"github.com/geoslide/tiffcore/tifferr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(tifferr.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "tiffctl",
		Short:        "inspect, copy, and compact TIFF/BigTIFF files",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.AddCommand(newInfoCommand(), newCopyCommand(), newCompactCommand(), newSetDescriptionCommand())
	return root
}

// newLogger returns the structured logger shared by every subcommand,
// matching reader/writer/copier's own zap.Option convention.
func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// openFileBackend wraps path in a ByteStream over the real filesystem.
// The byte order passed to bytestream.Open is a placeholder: opening an
// existing file always goes through reader.ParseHeader/Writer.OpenExisting
// first, which calls bs.SetOrder once the file's own BOM is read.
func openFileBackend(path string, flag int) (*bytestream.ByteStream, *os.File, error) {
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	bs, err := bytestream.Open(bytestream.NewFileBackend(f), binary.LittleEndian)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return bs, f, nil
}
