package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chanbot/internal/client"
	"github.com/alfredjeanlab/chanbot/internal/ui"
)

var (
	httpURL    string
	authToken  string
	jsonOutput bool
	noColor    bool

	adminClient client.AdminClient
)

var rootCmd = &cobra.Command{
	Use:   "chanbot <command>",
	Short: "Temporary private channel manager",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Setup(noColor)
		adminClient = client.NewHTTPClient(httpURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if adminClient != nil {
			adminClient.Close()
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", envOr("CHANBOT_HTTP_URL", "http://localhost:8080"), "admin API base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("CHANBOT_AUTH_TOKEN"), "admin API bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "channels", Title: "Channels:"},
		&cobra.Group{ID: "backup", Title: "Backup:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Channels
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(extendCmd)
	rootCmd.AddCommand(setExpiryCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(watchCmd)

	// Backup
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(restoreCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	ui.Setup(false)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
