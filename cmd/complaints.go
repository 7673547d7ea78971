package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var complaintsCmd = &cobra.Command{
	Use:   "complaints",
	Short: "Collect complaints about a competitor",
	Long:  "Runs complaint aggregation only (search, fetch, dedup) and prints the collected complaints as JSON. Categorization is not applied.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		profile, err := profileFromFlags()
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Aggregator.Collect(ctx, profile)
		if err != nil {
			return err
		}
		for _, f := range result.Failures {
			zap.L().Warn("source failed", zap.String("stage", f.Stage), zap.String("reason", f.Reason))
		}
		return printJSON(result.Complaints)
	},
}

func init() {
	complaintsCmd.Flags().StringVar(&analyzeName, "name", "", "competitor name (required)")
	complaintsCmd.Flags().StringVar(&analyzeURL, "url", "", "competitor root URL (required)")
	complaintsCmd.Flags().StringVar(&analyzeCountry, "country", "", "ISO country code for localized search (default US)")
	rootCmd.AddCommand(complaintsCmd)
}
