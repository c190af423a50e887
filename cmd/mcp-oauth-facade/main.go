// Command mcp-oauth-facade runs the OAuth 2.1 authorization facade.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcp-oauth-facade",
	Short: "OAuth 2.1 authorization facade for MCP clients",
	Long: `mcp-oauth-facade sits between dynamically-registered public PKCE clients
and a single confidential upstream IdP app registration. It relays
authorization requests upstream under its own client identity, stitches the
callback back to the original client, and re-mints short-lived tokens
carrying delegation claims for on-behalf-of calls.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newServeCommand())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
