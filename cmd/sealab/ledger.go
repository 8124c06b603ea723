package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/rpggio/sealab/internal/app"
	"github.com/rpggio/sealab/internal/transport"
)

func newLedgerCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger maintenance",
	}

	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Expose the configured ledger over JSON-RPC for remote clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(a *app.App) error {
				var authMW func(http.Handler) http.Handler
				if a.Config.Auth.Enabled {
					authMW = transport.AuthMiddleware(a)
				}
				srv := &http.Server{
					Addr:              addr,
					Handler:           transport.NewServer(a.Ledger, a.Logger, authMW),
					ReadHeaderTimeout: 10 * time.Second,
				}
				go func() {
					<-cmd.Context().Done()
					_ = srv.Close()
				}()
				fmt.Fprintf(cmd.ErrOrStderr(), "ledger listening on %s\n", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	serve.Flags().StringVar(&addr, "addr", "127.0.0.1:8081", "Listen address")

	status := &cobra.Command{
		Use:   "status",
		Short: "Report whether the ledger is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(a *app.App) error {
				ok, err := a.Ledger.IsAvailable(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("ledger unavailable")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ledger %s available\n", a.Config.Ledger.Driver)
				return nil
			})
		},
	}

	cmd.AddCommand(serve, status)
	return cmd
}
