package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fpoadmin/internal/api"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				if a.cfg.Auth.JWTSecret == "" {
					return errors.New("auth.jwt_secret is required to mint tokens")
				}
				issuer, err := api.NewTokenIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.cfg.Auth.TokenTTL)
				if err != nil {
					return err
				}
				token, expires, err := issuer.Issue(subject)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.stdout, "%s\nexpires %s\n", token, expires.UTC().Format(time.RFC3339))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, usually the operator name")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
