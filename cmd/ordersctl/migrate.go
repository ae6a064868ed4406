package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/course-orderflow/internal/catalog"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the catalog tables in MySQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := catalog.OpenMySQL(c.cfg.Database.DSN, catalog.PoolOptions{MaxOpenConns: 1})
			if err != nil {
				return err
			}
			if err := catalog.NewRepo(db).AutoMigrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "catalog schema up to date")
			return nil
		},
	}
}
