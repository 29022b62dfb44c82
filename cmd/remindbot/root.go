package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X main.version=1.2.3"
	version = "0.1.0"

	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "remindbot",
	Short: "WhatsApp course reminder bot",
	Long: color.CyanString("remindbot") +
		"\nSends generated study reminders to synchronized WhatsApp groups on a schedule.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("remindbot %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./remindbot.json", "path to config file (json or yaml)")
	rootCmd.AddCommand(runCmd, checkConfigCmd, versionCmd)
}
