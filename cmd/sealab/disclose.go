package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpggio/sealab/internal/app"
	"github.com/rpggio/sealab/internal/domain/disclosure"
)

func newDiscloseCmd(g *globalFlags) *cobra.Command {
	var (
		yes          bool
		durationDays int
	)
	cmd := &cobra.Command{
		Use:   "disclose ID",
		Short: "Sign the disclosure challenge and decrypt both parameters of a test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(a *app.App) error {
				if !yes {
					a.Key.WithApprover(promptApprover(cmd.InOrStdin(), cmd.ErrOrStderr()))
				}
				days := a.Config.Disclosure.DurationDays
				if durationDays > 0 {
					days = durationDays
				}
				out, err := disclose(cmd.Context(), a, args[0], days)
				if err != nil {
					return err
				}
				if g.jsonOut {
					return printJSON(cmd.OutOrStdout(), out)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\nA: %v\nB: %v\n", out.RecordID, out.ValueA, out.ValueB)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Sign without asking")
	cmd.Flags().IntVar(&durationDays, "days", 0, "Challenge validity window in days")
	return cmd
}

// disclose runs one open, authenticate, disclose, close cycle.
func disclose(ctx context.Context, a *app.App, id string, days int) (disclosure.Disclosed, error) {
	rec, err := a.Registry.Get(ctx, id)
	if err != nil {
		return disclosure.Disclosed{}, err
	}

	c, err := disclosure.NewContext(a.Config.Disclosure.ContractAddress, a.Config.Disclosure.ChainID, days, time.Now())
	if err != nil {
		return disclosure.Disclosed{}, err
	}
	sess, err := a.Disclosure.Open(ctx, a.Identity, c)
	if err != nil {
		return disclosure.Disclosed{}, err
	}
	defer a.Disclosure.Close(sess.ID)

	sig, err := a.Disclosure.Authenticate(ctx, sess.ID)
	if err != nil {
		return disclosure.Disclosed{}, err
	}
	return a.Disclosure.DiscloseRecord(ctx, sess.ID, rec, sig)
}

var errDeclined = errors.New("declined at prompt")

func promptApprover(in io.Reader, out io.Writer) func(ctx context.Context, identity, message string) error {
	return func(ctx context.Context, identity, message string) error {
		fmt.Fprintf(out, "Sign as %s?\n\n%s\n\n[y/N] ", identity, abbreviateChallenge(message))
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return errDeclined
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return nil
		default:
			return errDeclined
		}
	}
}

// abbreviateChallenge shortens the public key line, which is thousands of
// characters long.
func abbreviateChallenge(message string) string {
	lines := strings.Split(message, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "publickey:") && len(l) > 40 {
			lines[i] = l[:40] + "…"
		}
	}
	return strings.Join(lines, "\n")
}
