package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fundbridge/fundbridge/internal/domain"
)

// ─── Funding Target Commands ────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(targetCmd)
	targetCmd.AddCommand(targetCreateCmd, targetListCmd, targetUpdateCmd, targetDeleteCmd)

	targetCreateCmd.Flags().String("name", "", "Project name (unique, 1-100 characters)")
	targetCreateCmd.Flags().String("description", "", "Project description")
	targetCreateCmd.Flags().Int64("amount", 0, "Amount the project needs")
	for _, f := range []string{"name", "description", "amount"} {
		_ = targetCreateCmd.MarkFlagRequired(f)
	}
	addOutputFlag(targetCreateCmd)

	addOutputFlag(targetListCmd)

	targetUpdateCmd.Flags().String("name", "", "New project name")
	targetUpdateCmd.Flags().String("description", "", "New project description")
	targetUpdateCmd.Flags().Int64("amount", 0, "New required amount (not below what is invested)")
	addOutputFlag(targetUpdateCmd)
}

var targetCmd = &cobra.Command{
	Use:     "target",
	Aliases: []string{"project"},
	Short:   "Manage charity projects (funding targets)",
}

var targetCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project and match it against waiting donations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		desc, _ := cmd.Flags().GetString("description")
		amount, _ := cmd.Flags().GetInt64("amount")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		target, err := app.Ledger.CreateFundingTarget(cmd.Context(), domain.NewFundingTarget{
			Name:        name,
			Description: desc,
			FullAmount:  amount,
		})
		if err != nil {
			return err
		}
		return printTargets(cmd, []domain.FundingTarget{target})
	},
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		targets, err := app.Ledger.ListFundingTargets(cmd.Context())
		if err != nil {
			return err
		}
		return printTargets(cmd, targets)
	},
}

var targetUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Edit an open project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		var patch domain.TargetPatch
		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			patch.Name = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			patch.Description = &v
		}
		if cmd.Flags().Changed("amount") {
			v, _ := cmd.Flags().GetInt64("amount")
			patch.FullAmount = &v
		}

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		target, err := app.Ledger.UpdateFundingTarget(cmd.Context(), id, patch)
		if err != nil {
			return err
		}
		return printTargets(cmd, []domain.FundingTarget{target})
	},
}

var targetDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a project that has not received any money",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		target, err := app.Ledger.DeleteFundingTarget(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %d (%s).\n", target.ID, target.Name)
		return nil
	},
}

// ─── Rendering ──────────────────────────────────────────────────────────────

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", domain.ErrInvalidInput, s)
	}
	return id, nil
}

func printTargets(cmd *cobra.Command, targets []domain.FundingTarget) error {
	format, _ := cmd.Flags().GetString("format")
	if format != outputTable {
		return writeStructured(cmd.OutOrStdout(), format, targets)
	}

	t := newTable("ID", "Name", "Invested", "Needed", "Status", "Created", "Closed")
	for _, target := range targets {
		t.Row(
			strconv.FormatInt(target.ID, 10),
			target.Name,
			humanize.Comma(target.InvestedAmount),
			humanize.Comma(target.FullAmount),
			status(target.Investment),
			formatTime(&target.CreatedAt),
			formatTime(target.ClosedAt),
		)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return err
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
}

func status(inv domain.Investment) string {
	if inv.FullyInvested {
		return "closed"
	}
	return "open"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
