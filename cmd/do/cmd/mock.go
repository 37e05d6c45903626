package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/stravasync/internal/app"
	"github.com/templui/stravasync/internal/service"
)

func MockCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Generate or remove local-only activities",
	}
	cmd.PersistentFlags().StringVar(&userID, "user", "", "local user id")
	_ = cmd.MarkPersistentFlagRequired("user")

	var count int
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Insert generated activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				activities, err := a.MockService.Generate(cmd.Context(), userID, count)
				if err != nil {
					return err
				}
				fmt.Printf("==> Generated %d activities\n", len(activities))
				return nil
			})
		},
	}
	generate.Flags().IntVar(&count, "count", service.DefaultMockCount, "number of activities")

	var all bool
	remove := &cobra.Command{
		Use:   "delete",
		Short: "Delete generated activities (--all deletes synced ones too)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				del := a.MockService.DeleteMock
				if all {
					del = a.MockService.DeleteAll
				}
				res, err := del(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Printf("==> Deleted %d activities and %d photos\n", res.Activities, res.Photos)
				return nil
			})
		},
	}
	remove.Flags().BoolVar(&all, "all", false, "delete every activity of the user")

	cmd.AddCommand(generate, remove)
	return cmd
}
