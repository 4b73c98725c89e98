package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "storefront",
		Short: "Telegram storefront with PayPal checkout",
		Long: `Runs the storefront: the HTTP surface (payment pages, PayPal webhook,
operator API), the customer bot, the admin bot and the background sweeps.

With no subcommand every component is started in one process.`,
		Version:      Version,
		SilenceUsage: true,
		RunE:         runComponents(components{http: true, customer: true, admin: true}),
	}

	rootCmd.AddCommand(componentCmd("all", "Start every component", components{http: true, customer: true, admin: true}))
	rootCmd.AddCommand(componentCmd("http", "Start only the HTTP server", components{http: true}))
	rootCmd.AddCommand(componentCmd("customer-bot", "Start only the customer bot (polling)", components{customer: true}))
	rootCmd.AddCommand(componentCmd("admin-bot", "Start only the admin bot and sweeps (polling)", components{admin: true}))
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func componentCmd(use, short string, c components) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE:  runComponents(c),
	}
}
