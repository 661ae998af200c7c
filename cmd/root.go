package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailagent application
var rootCmd = &cobra.Command{
	Use:   "mailagent",
	Short: "Multi-account mail MCP server for AI assistants",
	Long: `mailagent is an MCP (Model Context Protocol) server that lets AI
assistants send, search and read email across multiple mail accounts.

Accounts are registered at runtime with their OAuth2 credentials and
persisted locally; access tokens are refreshed transparently when they
expire.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailagent version %s\n" .Version}}`)

	// If no subcommand is provided, run the server by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mailagent version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mailagent version %s\n", version)
		},
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
