package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rpggio/sealab/internal/app"
	"github.com/rpggio/sealab/internal/domain/abtest"
)

func newCreateCmd(g *globalFlags) *cobra.Command {
	var req abtest.CreateRequest
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a new test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			return g.withApp(cmd.Context(), func(a *app.App) error {
				req.Owner = a.Identity
				rec, err := a.Registry.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), rec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.VersionA, "a", "", "Label of version A")
	cmd.Flags().StringVar(&req.VersionB, "b", "", "Label of version B")
	cmd.Flags().Float64Var(&req.ParamA, "param-a", 0, "Parameter of version A")
	cmd.Flags().Float64Var(&req.ParamB, "param-b", 0, "Parameter of version B")
	_ = cmd.MarkFlagRequired("a")
	_ = cmd.MarkFlagRequired("b")
	return cmd
}

func newListCmd(g *globalFlags) *cobra.Command {
	var (
		status string
		owner  string
		mine   bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := abtest.ListOptions{Status: abtest.Status(status), Owner: owner, Limit: limit}
			if opts.Status != "" && !opts.Status.Valid() {
				return fmt.Errorf("%w: unknown status %q", abtest.ErrInvalidInput, status)
			}
			return g.withApp(cmd.Context(), func(a *app.App) error {
				if mine {
					opts.Owner = a.Identity
				}
				recs, err := a.Registry.List(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), recs)
				}
				return writeTests(cmd.OutOrStdout(), recs, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: active|completed")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner identity")
	cmd.Flags().BoolVar(&mine, "mine", false, "Only tests you own")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tests")
	return cmd
}

func newGetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(a *app.App) error {
				rec, err := a.Registry.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), rec)
				}
				return writeTest(cmd.OutOrStdout(), rec, time.Now())
			})
		},
	}
}

func newCompleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "complete ID",
		Short: "Mark a test you own as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(a *app.App) error {
				rec, err := a.Registry.Complete(cmd.Context(), args[0], a.Identity)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), rec)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "completed %s\n", rec.ID)
				return nil
			})
		},
	}
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count tests by status and total participants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(a *app.App) error {
				st, err := a.Registry.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), st)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "total:        %s\nactive:       %s\ncompleted:    %s\nparticipants: %s\n",
					humanize.Comma(int64(st.Total)), humanize.Comma(int64(st.Active)), humanize.Comma(int64(st.Completed)),
					humanize.Comma(st.Participants))
				return nil
			})
		},
	}
}

func newAverageCmd(g *globalFlags) *cobra.Command {
	var side string
	cmd := &cobra.Command{
		Use:   "average ID...",
		Short: "Encrypted average of one side across tests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(a *app.App) error {
				ct, err := a.Registry.AverageSide(cmd.Context(), args, abtest.Side(strings.ToUpper(side)))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ct)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&side, "side", "A", "Side to average: A|B")
	return cmd
}

func writeTests(w io.Writer, recs []abtest.TestRecord, now time.Time) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "no tests")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tA\tB\tSTATUS\tCREATED\tOWNER")
	for i := range recs {
		r := &recs[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.VersionALabel, r.VersionBLabel, r.Status, age(r.CreatedAt, now), shortIdentity(r.Owner))
	}
	return tw.Flush()
}

func writeTest(w io.Writer, r *abtest.TestRecord, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", r.ID)
	fmt.Fprintf(tw, "name:\t%s\n", r.Name)
	fmt.Fprintf(tw, "version A:\t%s\t%s\n", r.VersionALabel, r.CiphertextA)
	fmt.Fprintf(tw, "version B:\t%s\t%s\n", r.VersionBLabel, r.CiphertextB)
	fmt.Fprintf(tw, "status:\t%s\n", r.Status)
	fmt.Fprintf(tw, "created:\t%s\n", age(r.CreatedAt, now))
	fmt.Fprintf(tw, "owner:\t%s\n", r.Owner)
	fmt.Fprintf(tw, "participants:\t%s\n", humanize.Comma(r.ParticipantCount))
	return tw.Flush()
}

func age(createdAt int64, now time.Time) string {
	return humanize.RelTime(time.Unix(createdAt, 0), now, "ago", "from now")
}

// shortIdentity abbreviates a 0x identity as 0x1234…abcd.
func shortIdentity(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}
