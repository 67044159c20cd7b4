package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title           Back-office API
// @version         1.0
// @description     Catalog, stock ledger, orders and staff permissions for the store back office.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "backoffice",
	Short:        "Store back-office API server and admin tooling",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(grantAdminCmd)
	rootCmd.AddCommand(tokenCmd)
}
