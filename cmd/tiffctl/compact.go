package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/geoslide/tiffcore/copier"
)

func newCompactCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "compact <file>",
		Short: "rewrite file through a temporary sink, eliminating holes left by prior in-place edits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			srcBS, srcFile, err := openFileBackend(path, os.O_RDONLY)
			if err != nil {
				return err
			}

			// A random suffix, not a fixed ".compact.tmp", so two concurrent
			// compactions of the same file (or a leftover from a crashed
			// prior run) never collide on the same temporary path.
			tmpPath := fmt.Sprintf("%s.compact.%s.tmp", path, uuid.NewString())
			tmpBS, tmpFile, err := openFileBackend(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
			if err != nil {
				return err
			}

			logger := newLogger(verbose)
			c := copier.New(copier.WithLogger(logger), copier.WithProgressUpdater(func(imageIndex, imageCount, tileIndex, tileCount int, temp bool) {
				if imageCount > 0 {
					fmt.Printf("\rcompacting image %d/%d", imageIndex+1, imageCount)
				}
			}))
			if err := c.Compact(cmd.Context(), srcBS, tmpBS); err != nil {
				tmpFile.Close()
				os.Remove(tmpPath)
				return err
			}
			fmt.Println()
			if err := tmpFile.Close(); err != nil {
				return fmt.Errorf("close %s: %w", tmpPath, err)
			}
			if err := srcFile.Close(); err != nil {
				return fmt.Errorf("close %s: %w", path, err)
			}
			return os.Rename(tmpPath, path)
		},
	}
	cmd.Flags().BoolVar(&verbose, "verbose", false, "enable structured logging")
	return cmd
}
