// Command graphstorectl is an operator CLI for backup, restore, and purge
// against a graph-store partition, built with cobra following the pack's
// standard subcommand-tree idiom.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kishek/graph-store/config"
	"github.com/kishek/graph-store/graphstore"
)

func main() {
	root := &cobra.Command{
		Use:   "graphstorectl",
		Short: "operate a graph-store partition",
	}

	root.AddCommand(backupCmd(), restoreCmd(), purgeCmd())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
	}
}

func openStore(ctx context.Context) (*graphstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return graphstore.Open(ctx, cfg)
}

func backupCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "write a full KV snapshot to the blob store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			name, err := store.Backup.Backup(ctx, time.Now().UnixMilli(), reason)
			if err != nil {
				return err
			}
			fmt.Println(name)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "optional suffix tagging why this backup was taken")
	return cmd
}

func restoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <backupId>",
		Short: "restore a partition from a backup blob",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := store.Backup.Restore(ctx, args[0], time.Now().UnixMilli())
			if err != nil {
				return err
			}
			fmt.Printf("restored %d rows\n", count)
			return nil
		},
	}
	return cmd
}

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "delete every row in the partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.Entity.PurgeAllQuery(ctx); err != nil {
				return err
			}
			fmt.Println("purged")
			return nil
		},
	}
	return cmd
}
