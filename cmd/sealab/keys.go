package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpggio/sealab/internal/app"
	"github.com/rpggio/sealab/internal/signer"
	"github.com/rpggio/sealab/internal/transport"
)

func newKeygenCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Create a signer key file and print its identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			l, err := signer.WriteKey(cfg.Signer.KeyPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nidentity: %s\n", cfg.Signer.KeyPath, l.Identity())
			return nil
		},
	}
}

func newAPIKeyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage bearer tokens for the HTTP server",
	}

	var (
		identity    string
		description string
	)
	add := &cobra.Command{
		Use:   "add TOKEN",
		Short: "Register a bearer token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd.Context(), func(a *app.App) error {
				id := identity
				if id == "" {
					id = a.Identity
				}
				if err := a.APIKeys.Add(cmd.Context(), args[0], id, description); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "token %s… -> %s\n", transport.HashToken(args[0])[:12], id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&identity, "identity", "", "Identity the token acts as (defaults to the local key)")
	add.Flags().StringVar(&description, "description", "", "Free-form note")

	hash := &cobra.Command{
		Use:   "hash TOKEN",
		Short: "Print the token hash for auth.keys in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), transport.HashToken(args[0]))
			return nil
		},
	}

	cmd.AddCommand(add, hash)
	return cmd
}
