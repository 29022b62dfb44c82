package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"remindbot/internal/app"
)

var stopTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot and the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 20*time.Second, "upper bound for graceful shutdown")
}

func run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	select {
	case <-a.Ready():
		fmt.Println(color.GreenString("dashboard:"), "http://"+a.Addr())
		// Not running under systemd is not an error.
		_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	case <-a.Done():
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigs:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
		if a.Err() == nil {
			reason = app.StopAppStop
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	return a.Err()
}
