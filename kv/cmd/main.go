package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aep/cursorkv/api"
	"github.com/aep/cursorkv/bus"
	"github.com/aep/cursorkv/config"
	"github.com/aep/cursorkv/level"
	"github.com/aep/cursorkv/rql"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "kv",
	Short: "operate a store directly, without a server",
}

var (
	batchFile string
	raw       bool
	natsURL   string
)

func init() {
	CMD.AddCommand(listCmd)
	CMD.AddCommand(getCmd)
	CMD.AddCommand(putCmd)
	CMD.AddCommand(delCmd)
	CMD.AddCommand(batchCmd)
	CMD.AddCommand(destroyCmd)
	CMD.AddCommand(watchCmd)

	getCmd.Flags().BoolVar(&raw, "raw", false, "print the value as stored")
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "Path to YAML file, - for stdin")
	batchCmd.MarkFlagRequired("file")
	watchCmd.Flags().StringVar(&natsURL, "nats-url", "", "nats url the server publishes changes to")
}

func open(cmd *cobra.Command) (*level.Store, func(), error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, nil, err
	}
	return cfg.OpenStore(cmd.Context())
}

var listCmd = &cobra.Command{
	Use:   "ls [query]",
	Short: `List entries, e.g. ls 'key^user/ limit=10'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := rql.Parse(strings.Join(args, " "))
		if err != nil {
			return err
		}

		s, closeStore, err := open(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		for e, err := range s.Iterator(cmd.Context(), q.IteratorOptions()).All(cmd.Context()) {
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", escapeNonPrintable(e.Key.Bytes()), escapeNonPrintable(e.Value.Bytes()))
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get value for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := open(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		v, err := s.Get(cmd.Context(), []byte(args[0]), &level.Options{NoBuffer: raw})
		if err != nil {
			return err
		}
		if raw {
			fmt.Printf("%s (%s)\n", v.String(), v.Kind())
			return nil
		}
		os.Stdout.Write(v.Bytes())
		fmt.Println()
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put [key] [value]",
	Short: "Put a key-value pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := open(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		return s.Put(cmd.Context(), []byte(args[0]), level.Text(args[1]), nil)
	},
}

var delCmd = &cobra.Command{
	Use:     "del [key]",
	Aliases: []string{"rm"},
	Short:   "Delete a key-value pair",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, closeStore, err := open(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		return s.Delete(cmd.Context(), []byte(args[0]), nil)
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Apply batches from a yaml file atomically, one transaction per document",
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if batchFile == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(batchFile)
		}
		if err != nil {
			return err
		}
		batches, err := api.ParseBatches(data)
		if err != nil {
			return err
		}

		s, closeStore, err := open(cmd)
		if err != nil {
			return err
		}
		defer closeStore()

		for i, b := range batches {
			ops, o, err := b.LevelOps()
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			if err := s.Batch(cmd.Context(), ops, o); err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			fmt.Printf("%d ops written\n", len(ops))
		}
		return nil
	},
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Delete the store and all its data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		return cfg.Destroy(cmd.Context())
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the changes a server publishes over nats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := bus.ConnectNats(natsURL)
		if err != nil {
			return err
		}
		defer n.Close()

		for {
			msg, err := n.Recv(cmd.Context(), bus.ChangesTopic)
			if err != nil {
				if cmd.Context().Err() != nil {
					return nil
				}
				return err
			}
			fmt.Println(string(msg))
		}
	},
}

func escapeNonPrintable(b []byte) string {
	var result strings.Builder
	for _, c := range b {
		if c >= 32 && c <= 126 {
			result.WriteByte(c)
		} else {
			result.WriteString(fmt.Sprintf("\\x%02x", c))
		}
	}
	return result.String()
}

