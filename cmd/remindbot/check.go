package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"remindbot/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfigManager(cfgPath).Parse()
		if err != nil {
			fmt.Println(color.RedString("✗"), err)
			return err
		}
		ok := color.GreenString("✓")
		warn := color.YellowString("!")

		fmt.Println(ok, "config", cfgPath)
		fmt.Printf("  http:      %s\n", cfg.HTTP.Addr)
		fmt.Printf("  storage:   %s (%s)\n", cfg.Storage.Driver, cfg.Storage.Path)
		fmt.Printf("  whatsapp:  %s\n", cfg.WhatsApp.StorePath)
		fmt.Printf("  timezone:  %s\n", cfg.Scheduler.Location())
		fmt.Printf("  generator: %s %s\n", cfg.Generator.APIBase, cfg.Generator.Model)

		if strings.TrimSpace(cfg.Generator.APIKey) == "" {
			fmt.Println(warn, "generator api key missing; fallback messages will be sent")
		}
		if !strings.HasPrefix(cfg.HTTP.Addr, "127.0.0.1") && !strings.HasPrefix(cfg.HTTP.Addr, "localhost") {
			fmt.Println(warn, "dashboard is not bound to localhost and has no authentication")
		}
		if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
			fmt.Println(ok, "telegram alerts configured")
		}
		return nil
	},
}
