package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover a competitor's commercial pages",
	Long:  "Runs page discovery only (sitemap, then link-pattern fallback) and prints the classified pages as JSON.",
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

		result, err := env.Discovery.Discover(ctx, profile)
		if err != nil {
			return err
		}
		if result.Incomplete {
			zap.L().Warn("no pricing or features pages found",
				zap.String("competitor", profile.Name))
		}
		return printJSON(result)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&analyzeName, "name", "", "competitor name (required)")
	discoverCmd.Flags().StringVar(&analyzeURL, "url", "", "competitor root URL (required)")
	discoverCmd.Flags().StringArrayVar(&analyzeOverrides, "page", nil, "manual page override URL (repeatable)")
	rootCmd.AddCommand(discoverCmd)
}
