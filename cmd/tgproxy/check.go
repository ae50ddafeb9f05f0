package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tgproxy/internal/app"
	"tgproxy/internal/eventbus"
	logx "tgproxy/pkg/logx"
)

var checkCmd = &cobra.Command{
	Use:   "check [channel-url...]",
	Short: "Validate the configuration and print the resulting channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(appOptions(cmd, args))
		if err != nil {
			return err
		}
		reg, err := app.BuildRegistry(cfg, eventbus.New(), logx.Nop())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "listen: %s\n", cfg.Server.Addr())
		for _, ch := range reg.Channels() {
			fmt.Fprintf(out, "channel %s: %s queue=%d\n", ch.Name(), ch.Describe(), ch.Cap())
		}
		return nil
	},
}
