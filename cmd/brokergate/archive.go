package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfold/brokergate/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errArchiveDisabled = errors.New("archiving is not enabled; set archive.enabled in the config")

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect archived call records",
}

var archiveLsCmd = &cobra.Command{
	Use:   "ls [PREFIX]",
	Short: "List archived call-record batches",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			storage := a.ArchiveStorage()
			if storage == nil {
				return errArchiveDisabled
			}

			prefix := "calls/"
			if len(args) == 1 {
				prefix = args[0]
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			paths, err := storage.List(ctx, prefix)
			if err != nil {
				return fmt.Errorf("listing archive: %w", err)
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		})
	},
}

var archiveCatCmd = &cobra.Command{
	Use:   "cat PATH",
	Short: "Print an archived call-record batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			storage := a.ArchiveStorage()
			if storage == nil {
				return errArchiveDisabled
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			data, err := storage.Read(ctx, args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			fmt.Print(string(data))
			return nil
		})
	},
}

func init() {
	archiveCmd.AddCommand(archiveLsCmd)
	archiveCmd.AddCommand(archiveCatCmd)
	rootCmd.AddCommand(archiveCmd)
}
