package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	downloadOutput     string
	downloadAttachment bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download a file",
	Long: `Download a file by id.

Writes to stdout unless -o is given. Private files require the owner's
session token.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "write to file instead of stdout")
	downloadCmd.Flags().BoolVar(&downloadAttachment, "attachment", false, "request attachment disposition")
}

func runDownload(_ *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	out := os.Stdout
	if downloadOutput != "" {
		f, createErr := os.Create(downloadOutput)
		if createErr != nil {
			return fmt.Errorf("create output file: %w", createErr)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if err := client.Download(context.Background(), args[0], downloadAttachment, out); err != nil {
		_ = getFormatter().FormatError(os.Stderr, err)
		return err
	}

	return nil
}
