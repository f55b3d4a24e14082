package main

import (
	"fmt"
	"os"

	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/storage"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export one test case as a gzipped tarball",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := storage.New(cfg.Storage.Root, logging.Nop())
			if err != nil {
				return err
			}

			name := args[0]
			if out == "" {
				out = name + ".tar.gz"
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := store.Export(name, f); err != nil {
				os.Remove(out)
				return err
			}

			fmt.Printf("exported %q to %s\n", name, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default <name>.tar.gz)")
	return cmd
}
