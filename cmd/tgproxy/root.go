package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tgproxy/internal/app"
	"tgproxy/internal/config"
)

// Version is set at build time.
var Version = "dev"

type flags struct {
	config string
	host   string
	port   int
	debug  bool
}

var opts flags

var rootCmd = &cobra.Command{
	Use:   "tgproxy [channel-url...]",
	Short: "HTTP proxy that queues messages and delivers them to Telegram",
	Long: `tgproxy accepts messages over HTTP and delivers them to Telegram chats.

Each channel is a URL:

  telegram://<bot_id>:<secret>@<chat_id>/<name>?timeout=10&send_banner_on_startup=0

Channel URLs given as arguments replace the channels of the config file.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.config, "config", "c", "", "path to config file (json or yaml)")
	pf.StringVarP(&opts.host, "host", "H", config.DefaultHost, "listen host")
	pf.IntVarP(&opts.port, "port", "P", config.DefaultPort, "listen port")
	pf.BoolVarP(&opts.debug, "debug", "d", false, "debug logging")
	rootCmd.AddCommand(checkCmd)
}

// appOptions maps flags onto the config. Only flags the user set override
// the file.
func appOptions(cmd *cobra.Command, urls []string) app.Options {
	hostSet := cmd.Flags().Changed("host")
	portSet := cmd.Flags().Changed("port")
	return app.Options{
		ConfigPath: opts.config,
		Override: func(c *config.Config) {
			if hostSet {
				c.Server.Host = opts.host
			}
			if portSet {
				c.Server.Port = opts.port
			}
			if opts.debug {
				c.Logging.Level = "debug"
			}
			if len(urls) > 0 {
				c.Channels = append([]string(nil), urls...)
			}
		},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(appOptions(cmd, args))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}
	runErr := a.Err()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	return runErr
}
