package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"smart-stick/tracker/internal/auth"
	"smart-stick/tracker/internal/config"
)

func newTokenCommand() *cobra.Command {
	var (
		userID  string
		stickID string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a stick (development)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stickID == "" {
				return errors.New("--stick is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.JWTExpiresIn
			}

			token, expiresAt, err := auth.NewTokenProvider(cfg.JWTSecret, cfg.JWTIssuer, ttl).Issue(userID, stickID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&stickID, "stick", "", "Stick id the token grants access to.")
	cmd.Flags().StringVar(&userID, "user", "dev", "User id placed in the token.")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_EXPIRES_IN).")
	return cmd
}
