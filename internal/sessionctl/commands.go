// Package sessionctl implements the operator CLI for issuing and checking
// session tokens and generating key material.
package sessionctl

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gsheetsmcp/internal/common"
	"github.com/dmitrijs2005/gsheetsmcp/internal/cryptox"
	"github.com/dmitrijs2005/gsheetsmcp/internal/server/auth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const secretEnv = "JWT_SECRET_KEY"

// NewRootCommand builds the sessionctl command tree. lookup resolves
// environment variables.
func NewRootCommand(lookup func(string) (string, bool)) *cobra.Command {
	root := &cobra.Command{
		Use:          "sessionctl",
		Short:        "Manage gsheetsmcp session tokens and keys",
		SilenceUsage: true,
	}

	root.AddCommand(newIssueCommand(lookup), newInspectCommand(lookup), newKeygenCommand())
	return root
}

func signingSecret(flagValue string, lookup func(string) (string, bool)) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if v, ok := lookup(secretEnv); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: pass --secret or set %s", common.ErrSigningKeyUnavailable, secretEnv)
}

func newIssueCommand(lookup func(string) (string, bool)) *cobra.Command {
	var userID, email, secret string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a session token for an existing user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := uuid.Parse(userID); err != nil {
				return fmt.Errorf("--user-id must be a UUID: %w", err)
			}

			key, err := signingSecret(secret, lookup)
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(key)
			if err != nil {
				return err
			}

			token, err := tokens.Issue(userID, email)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "user id (UUID) the token is issued for")
	cmd.Flags().StringVar(&email, "email", "", "email carried in the token")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to $"+secretEnv+")")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}

func newInspectCommand(lookup func(string) (string, bool)) *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "inspect TOKEN",
		Short: "Validate a session token and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := signingSecret(secret, lookup)
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(key)
			if err != nil {
				return err
			}

			claims, err := tokens.Validate(args[0])
			if err != nil {
				if errors.Is(err, common.ErrTokenExpired) {
					return fmt.Errorf("token expired")
				}
				return fmt.Errorf("token invalid")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user_id: %s\n", claims.UserID)
			fmt.Fprintf(out, "email:   %s\n", claims.Email)
			fmt.Fprintf(out, "issued:  %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
			fmt.Fprintf(out, "expires: %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to $"+secretEnv+")")
	return cmd
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a random key suitable for ENCRYPTION_KEY or JWT_SECRET_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), common.MakeRandURLString(cryptox.MinKeySize))
			return err
		},
	}
}
