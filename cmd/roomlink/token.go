package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vntrieu/roomlink/internal/auth"
	"github.com/vntrieu/roomlink/internal/config"
)

func tokenCmd() *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the control API",
		Long:  `Sign a bearer token with ROOMLINK_API_SECRET for clients of the local control API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if settings.APISecret == "" {
				return errors.New("ROOMLINK_API_SECRET is not set; the control API is unauthenticated")
			}
			token, expiresAt, err := auth.GenerateToken(subject, []byte(settings.APISecret), expiry)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "overlay", "token subject")
	cmd.Flags().DurationVar(&expiry, "expiry", auth.DefaultTokenExpiry, "token lifetime")

	return cmd
}
