package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/compintel/internal/model"
)

var (
	analyzeName      string
	analyzeURL       string
	analyzeCountry   string
	analyzeOverrides []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a full competitor analysis",
	Long:  "Runs discovery, complaint aggregation, categorization, and structured extraction for one competitor and prints the result as JSON.",
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

		result, err := env.Pipeline.Run(ctx, profile)
		if err != nil {
			return err
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", result.RunID),
			zap.String("status", string(result.Status)),
		)
		return printJSON(result)
	},
}

func profileFromFlags() (model.CompetitorProfile, error) {
	if analyzeName == "" || analyzeURL == "" {
		return model.CompetitorProfile{}, eris.New("--name and --url are required")
	}
	return model.CompetitorProfile{
		Name:            analyzeName,
		RootURL:         analyzeURL,
		CountryCode:     analyzeCountry,
		ManualOverrides: analyzeOverrides,
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeName, "name", "", "competitor name (required)")
	analyzeCmd.Flags().StringVar(&analyzeURL, "url", "", "competitor root URL (required)")
	analyzeCmd.Flags().StringVar(&analyzeCountry, "country", "", "ISO country code for localized search (default US)")
	analyzeCmd.Flags().StringArrayVar(&analyzeOverrides, "page", nil, "manual page override URL (repeatable)")
	rootCmd.AddCommand(analyzeCmd)
}
