package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fundbridge/fundbridge/internal/domain"
)

// ─── Contribution Commands ──────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(contributionCmd)
	contributionCmd.AddCommand(contributionCreateCmd, contributionListCmd)

	contributionCreateCmd.Flags().String("owner", "", "Donor identifier")
	contributionCreateCmd.Flags().Int64("amount", 0, "Donated amount")
	contributionCreateCmd.Flags().String("comment", "", "Optional comment")
	_ = contributionCreateCmd.MarkFlagRequired("owner")
	_ = contributionCreateCmd.MarkFlagRequired("amount")
	addOutputFlag(contributionCreateCmd)

	contributionListCmd.Flags().String("owner", "", "Only list this donor's contributions")
	addOutputFlag(contributionListCmd)
}

var contributionCmd = &cobra.Command{
	Use:     "contribution",
	Aliases: []string{"donation"},
	Short:   "Record and inspect donations",
}

var contributionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Record a donation and match it against open projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		amount, _ := cmd.Flags().GetInt64("amount")
		comment, _ := cmd.Flags().GetString("comment")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		c, err := app.Ledger.CreateContribution(cmd.Context(), domain.NewContribution{
			OwnerID:    owner,
			FullAmount: amount,
			Comment:    comment,
		})
		if err != nil {
			return err
		}
		return printContributions(cmd, []domain.Contribution{c})
	},
}

var contributionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List donations, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		var list []domain.Contribution
		if owner != "" {
			list, err = app.Ledger.ListContributionsForOwner(cmd.Context(), owner)
		} else {
			list, err = app.Ledger.ListAllContributions(cmd.Context())
		}
		if err != nil {
			return err
		}
		return printContributions(cmd, list)
	},
}

func printContributions(cmd *cobra.Command, list []domain.Contribution) error {
	format, _ := cmd.Flags().GetString("format")
	if format != outputTable {
		return writeStructured(cmd.OutOrStdout(), format, list)
	}

	t := newTable("ID", "Owner", "Invested", "Amount", "Status", "Created", "Comment")
	for _, c := range list {
		t.Row(
			strconv.FormatInt(c.ID, 10),
			c.OwnerID,
			humanize.Comma(c.InvestedAmount),
			humanize.Comma(c.FullAmount),
			status(c.Investment),
			formatTime(&c.CreatedAt),
			c.Comment,
		)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return err
}
