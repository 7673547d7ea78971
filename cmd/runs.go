package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/compintel/internal/model"
	"github.com/sells-group/compintel/internal/store"
)

var (
	runsStatus     string
	runsCompetitor string
	runsLimit      int
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List persisted analysis runs",
	Long:  "Lists runs most recent first, or prints one run (with its result) when a run ID is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if len(args) == 1 {
			run, err := st.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(run)
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:     model.RunStatus(runsStatus),
			Competitor: runsCompetitor,
			Limit:      runsLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(runs)
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by run status")
	runsCmd.Flags().StringVar(&runsCompetitor, "competitor", "", "filter by competitor name")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
