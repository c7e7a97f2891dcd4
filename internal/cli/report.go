package cli

import (
	"github.com/spf13/cobra"

	"github.com/fundbridge/fundbridge/internal/app/report"
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringP("format", "o", "", "Report format: json, yaml, csv or table (default [report].default_format)")
	reportCmd.Flags().Int("limit", -1, "Maximum rows (default [report].default_limit, 0 for all)")
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rank closed projects by how fast they were funded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		raw, _ := cmd.Flags().GetString("format")
		if raw == "" {
			raw = app.Config.Report.DefaultFormat
		}
		format, err := report.ParseFormat(raw)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		if limit < 0 {
			limit = app.Config.Report.DefaultLimit
		}

		rep, err := app.Reports.Generate(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return report.Render(cmd.OutOrStdout(), rep, format)
	},
}
