package commands

// Root command for Cobra CLI
// Registers all subcommands (bot, verify)

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "printr-launcher",
	Short: "Printr Launcher - Telegram bot for scheduling multi-chain token launches",
	Long: `Printr Launcher is a Go-based Telegram bot that schedules token launches
through the Printr token-creation API across seven blockchains, with wallet
management and per-chain submission tracking.`,
	Version: "1.0.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(verifyCmd)
}
