package main

import (
	"github.com/spf13/cobra"

	"github.com/akmatori/incidentwatch/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the incident tables",
	Long: `Run schema migrations for incidents, incident messages and reviews.

Environment Variables Required:
  DATABASE_URL    - PostgreSQL connection string`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer database.Close(db)
		return database.AutoMigrate(db)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
