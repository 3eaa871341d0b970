package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/aep/cursorkv/api"
	"github.com/spf13/cobra"
)

var (
	file     string
	address  = "http://localhost:27666"
	binary   bool
	nobuffer bool

	CMD = &cobra.Command{
		Use:   "client",
		Short: "talk to a running server",
	}

	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Get a value",
		Args:  cobra.ExactArgs(1),
		Run:   get,
	}

	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Put a value, read from stdin when value is omitted",
		Args:  cobra.RangeArgs(1, 2),
		Run:   put,
	}

	delCmd = &cobra.Command{
		Use:     "del [key]",
		Aliases: []string{"rm"},
		Short:   "Delete a key",
		Args:    cobra.ExactArgs(1),
		Run:     del,
	}

	lsCmd = &cobra.Command{
		Use:   "ls [query]",
		Short: `List entries, e.g. ls 'key>="a" limit=10'`,
		Run:   ls,
	}

	applyCmd = &cobra.Command{
		Use:   "apply",
		Short: "Apply batches from a yaml file",
		Run:   apply,
	}

	editCmd = &cobra.Command{
		Use:   "edit [key]",
		Short: "Edit a value in $EDITOR",
		Args:  cobra.ExactArgs(1),
		Run:   edit,
	}
)

func init() {
	CMD.PersistentFlags().StringVar(&address, "address", address, "server address")

	getCmd.Flags().BoolVar(&nobuffer, "nobuffer", false, "print the value as json")
	putCmd.Flags().BoolVar(&binary, "binary", false, "store the value as bytes")
	applyCmd.Flags().StringVarP(&file, "file", "f", "", "Path to YAML file, - for stdin")
	applyCmd.MarkFlagRequired("file")

	CMD.AddCommand(getCmd)
	CMD.AddCommand(putCmd)
	CMD.AddCommand(delCmd)
	CMD.AddCommand(lsCmd)
	CMD.AddCommand(applyCmd)
	CMD.AddCommand(editCmd)
}

// ParseFile reads batches from a yaml file, see api.ParseBatches.
func ParseFile(file string) ([]api.BatchRequest, error) {
	var data []byte
	var err error

	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %v", err)
	}

	return api.ParseBatches(data)
}

func get(cmd *cobra.Command, args []string) {
	v, err := New(address).Get(context.Background(), args[0], nobuffer)
	if err != nil {
		log.Fatal(err)
	}
	os.Stdout.Write(v)
	if nobuffer {
		fmt.Println()
	}
}

func put(cmd *cobra.Command, args []string) {
	var value []byte
	if len(args) == 2 {
		value = []byte(args[1])
	} else {
		var err error
		value, err = io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatal(err)
		}
	}
	if err := New(address).Put(context.Background(), args[0], value, binary); err != nil {
		log.Fatal(err)
	}
}

func del(cmd *cobra.Command, args []string) {
	if err := New(address).Delete(context.Background(), args[0]); err != nil {
		log.Fatal(err)
	}
}

func ls(cmd *cobra.Command, args []string) {
	q := strings.Join(args, " ")
	for e, err := range New(address).Range(context.Background(), q) {
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s\t%v\n", e.Key, e.Value)
	}
}

func apply(cmd *cobra.Command, args []string) {
	batches, err := ParseFile(file)
	if err != nil {
		log.Fatal(err)
	}

	c := New(address)
	for _, b := range batches {
		resp, err := c.Batch(context.Background(), &b)
		if err != nil {
			log.Fatalf("batch rejected: %v", err)
		}
		fmt.Printf("%d ops written\n", resp.Written)
	}
}

func edit(cmd *cobra.Command, args []string) {
	c := New(address)

	original, err := c.Get(context.Background(), args[0], false)
	if err != nil && !api.IsNotFound(err) {
		log.Fatal(err)
	}

	tmpfile, err := os.CreateTemp("", "cursorkv-edit-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.Remove(tmpfile.Name())

	tmpfile.Write(original)
	tmpfile.Close()

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vim"
	}
	cmd2 := exec.Command(editor, tmpfile.Name())
	cmd2.Stdin = os.Stdin
	cmd2.Stdout = os.Stdout
	cmd2.Stderr = os.Stderr
	if err := cmd2.Run(); err != nil {
		log.Fatal(err)
	}

	edited, err := os.ReadFile(tmpfile.Name())
	if err != nil {
		log.Fatal(err)
	}
	if bytes.Equal(edited, original) {
		fmt.Println("Edit cancelled, no changes made")
		return
	}

	if err := c.Put(context.Background(), args[0], edited, binary); err != nil {
		log.Fatal(err)
	}
}
