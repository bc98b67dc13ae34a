package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/toccatech/coffre/config"
)

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Remove orphaned blobs from the uploads directory",
	Long: `Remove blobs that no metadata record references.

An upload interrupted between the blob write and the record creation can
leave a blob behind that nothing points at. This command lists the uploads
directory, checks each blob against the metadata store, and deletes the
ones with no record that are older than the cutoff.

Run this manually or from a cron job; the server never does it on its own.`,
	RunE: runReclaim,
}

var reclaimOlderThan time.Duration

func init() {
	reclaimCmd.Flags().DurationVar(&reclaimOlderThan, "older-than", 24*time.Hour, "only reclaim blobs older than this")
	rootCmd.AddCommand(reclaimCmd)
}

func runReclaim(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.FromContext(ctx)
	if err != nil {
		return err
	}

	service, _, cleanup, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	cutoff := time.Now().Add(-reclaimOlderThan)
	slog.Info("starting reclaim", "cutoff", cutoff)

	removed, err := service.Reclaim(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("reclaim: %w", err)
	}

	slog.Info("reclaim complete", "blobs_removed", removed)
	return nil
}
