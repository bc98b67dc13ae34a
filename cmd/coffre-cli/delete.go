package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <file-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a file",
	Long:    `Delete a file. Requires the owner's session token.`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDelete,
}

func runDelete(_ *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	if err := client.Delete(context.Background(), args[0]); err != nil {
		_ = getFormatter().FormatError(os.Stderr, err)
		return err
	}

	if !quiet {
		fmt.Printf("deleted %s\n", args[0])
	}
	return nil
}
