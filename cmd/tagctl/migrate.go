package main

import (
	"github.com/spf13/cobra"

	"github.com/bigkaa/goarttag/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции схемы (или откатить все с --down)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if down {
				return database.MigrateDown(a.cfg, a.logger)
			}
			return database.Migrate(a.cfg, a.logger)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Откатить все миграции (удаляет данные)")
	return cmd
}
