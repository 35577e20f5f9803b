package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the token store schema",
	}
	cmd.AddCommand(migrateDirectionCmd("up", "Apply all migrations", true))
	cmd.AddCommand(migrateDirectionCmd("down", "Roll back all migrations", false))
	return cmd
}

func migrateDirectionCmd(use, short string, up bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := loadApp()
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())

			if err := requireStore(application); err != nil {
				return err
			}
			if err := application.Store().Migrate(cmd.Context(), up); err != nil {
				return err
			}
			fmt.Printf("Migrations %s complete (%s)\n", use, application.Store().Backend())
			return nil
		},
	}
}
