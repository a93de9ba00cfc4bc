package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openfold/brokergate/internal/app"
	"github.com/openfold/brokergate/internal/provider"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var execCmd = &cobra.Command{
	Use:   "exec PROVIDER OPERATION [key=value]...",
	Short: "Run a raw provider operation and print the response body",
	Long: `Run an operation against a specific provider without
normalization. Parameters are key=value pairs, e.g.:

  brokergate exec tradier get_quote symbol=AAPL`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			params := make(map[string]any, len(args)-2)
			for _, kv := range args[2:] {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("malformed parameter %q, want key=value", kv)
				}
				params[k] = v
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			raw, err := a.Gateway.Execute(ctx, args[0], provider.Operation(args[1]), params)
			if err != nil {
				return err
			}
			fmt.Println(string(raw.Body))
			return nil
		})
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify MESSAGE",
	Short: "Post a notification message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return a.Gateway.Notify(ctx, args[0], notifyProvider)
		})
	},
}

var notifyProvider string

func init() {
	notifyCmd.Flags().StringVarP(&notifyProvider, "provider", "p", "", "force a specific provider")
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(notifyCmd)
}
