package server

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aep/cursorkv/config"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "serve",
	Short: "serve a store over http",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Main(ctx, cfg)
	},
}

func init() {
	config.AddServeFlags(CMD)
}
