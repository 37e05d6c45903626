package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/templui/stravasync/internal/app"
)

func SyncCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a Strava sync pass for one user",
	}
	cmd.PersistentFlags().StringVar(&userID, "user", "", "local user id")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(&cobra.Command{
		Use:   "activities",
		Short: "Pull recent activities and their photos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.SyncService.SyncActivities(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "photos",
		Short: "Refresh photo sets of synced activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.SyncService.SyncPhotos(cmd.Context(), userID)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	})
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
