package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/templui/stravasync/internal/app"
)

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Identity and link-state token tools",
	}

	var subject, email string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer assertion for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				token, err := a.IdentityService.IssueToken(subject, email, ttl)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			})
		},
	}
	issue.Flags().StringVar(&subject, "sub", "dev|local", "subject claim")
	issue.Flags().StringVar(&email, "email", "dev@example.com", "email claim")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	var olderThan time.Duration
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired and used link states",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.TokenRepository.CleanupExpired(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Printf("==> Removed %d tokens\n", n)
				return nil
			})
		},
	}
	cleanup.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "minimum age of removed tokens")

	cmd.AddCommand(issue, cleanup)
	return cmd
}
