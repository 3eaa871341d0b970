package main

import (
	"fmt"
	"log/slog"
	"os"

	cl "github.com/aep/cursorkv/client"
	"github.com/aep/cursorkv/config"
	kv "github.com/aep/cursorkv/kv/cmd"
	"github.com/aep/cursorkv/logging"
	sr "github.com/aep/cursorkv/server"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "cursorkv",
	Short:         "leveldb style key value store over an object store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		logging.Level.Set(cfg.Level())
		slog.SetDefault(logging.New())
		return nil
	},
}

func init() {
	config.AddFlags(rootCmd)

	rootCmd.AddCommand(sr.CMD)
	rootCmd.AddCommand(kv.CMD)
	rootCmd.AddCommand(cl.CMD)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
