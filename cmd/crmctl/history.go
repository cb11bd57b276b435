package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"campaign-console/internal/campaign"
	"campaign-console/internal/crmapi"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderHistory(w io.Writer, list []crmapi.Campaign) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No campaigns yet.")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, c := range list {
		created := "-"
		if !c.CreatedAt.IsZero() {
			created = c.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			c.ID,
			c.DisplayName(),
			c.DisplayStatus(),
			strconv.Itoa(c.AudienceSize),
			strconv.Itoa(c.Sent),
			strconv.Itoa(c.Failed),
			strings.Join(c.Tags, ", "),
			created,
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "STATUS", "AUDIENCE", "SENT", "FAILED", "TAGS", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List campaigns, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			h := campaign.NewHistory(a.client, nil)
			list, err := h.Refresh(cmd.Context())
			if err != nil {
				printStatus(cmd.ErrOrStderr(), h.Status())
				return err
			}
			renderHistory(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <campaign-id>",
		Short: "Send a campaign to its audience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h := campaign.NewHistory(a.client, nil)
			// Load the list first so already-sent campaigns are refused locally.
			if _, err := h.Refresh(cmd.Context()); err != nil {
				printStatus(cmd.ErrOrStderr(), h.Status())
				return err
			}
			_, err := h.Send(cmd.Context(), args[0])
			printStatus(cmd.OutOrStdout(), h.Status())
			return err
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the session belongs to",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.client.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			if u.Email != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", u.Name, u.Email)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), u.Name)
			return nil
		},
	}
}
