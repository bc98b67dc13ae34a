package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <file-id>",
	Short: "Show a file's metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(_ *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	formatter := getFormatter()

	rec, err := client.Info(context.Background(), args[0])
	if err != nil {
		_ = formatter.FormatError(os.Stderr, err)
		return err
	}

	return formatter.FormatInfo(os.Stdout, rec)
}
