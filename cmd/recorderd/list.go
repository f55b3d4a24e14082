package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/replaykit/recorderd/internal/infrastructure/logging"
	"github.com/replaykit/recorderd/internal/shared/types"
	"github.com/replaykit/recorderd/internal/storage"
	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded test cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := storage.New(cfg.Storage.Root, logging.Nop())
			if err != nil {
				return err
			}

			var tests []types.TestCase
			if pattern != "" {
				tests, err = store.Find(pattern)
			} else {
				tests, err = store.List()
			}
			if err != nil {
				return err
			}

			if len(tests) == 0 {
				fmt.Println("no test cases recorded")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTARTING POINT\tACCURACY\tCREATED\tPURPOSE")
			for _, tc := range tests {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					tc.Name, tc.StartingPoint, tc.AccuracyLevel,
					tc.CreatedAt.Format("2006-01-02 15:04"), tc.Purpose)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "glob pattern on test names")
	return cmd
}
