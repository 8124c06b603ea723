package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rpggio/sealab/internal/app"
	"github.com/rpggio/sealab/internal/domain/activity"
)

func newActivityCmd(g *globalFlags) *cobra.Command {
	var (
		limit    int
		recordID string
	)
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := activity.ListActivityOptions{Limit: limit}
			if recordID != "" {
				opts.RecordID = &recordID
			}
			return g.withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.Activity.GetRecentActivity(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				now := time.Now()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", humanize.RelTime(e.CreatedAt, now, "ago", "from now"), e.ActivityType, shortIdentity(e.Actor), e.Summary)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")
	cmd.Flags().StringVar(&recordID, "test", "", "Only activity for this test id")
	return cmd
}
