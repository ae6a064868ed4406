// Command ordersctl is the operator tool for the order service: it creates the
// DynamoDB tables, migrates the catalog schema and signs test payloads.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/course-orderflow/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries state shared by subcommands.
type cli struct {
	configFile string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "ordersctl",
		Short:         "Operate the course order service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := c.configFile
			if path == "" {
				path = os.Getenv("CONFIG_FILE")
			}
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.configFile, "config", "", "YAML config file (default $CONFIG_FILE)")

	rootCmd.AddCommand(c.createTablesCmd())
	rootCmd.AddCommand(c.migrateCmd())
	rootCmd.AddCommand(c.signWebhookCmd())
	rootCmd.AddCommand(c.signPaymentCmd())
	rootCmd.AddCommand(c.issueTokenCmd())

	return rootCmd
}
