package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openfold/brokergate/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	barsProvider string
	barsInterval string
	barsStart    string
	barsEnd      string
)

var barsCmd = &cobra.Command{
	Use:   "bars SYMBOL",
	Short: "Fetch normalized OHLCV bars for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			end := time.Now().UTC()
			start := end.AddDate(0, 0, -30)
			var err error
			if barsStart != "" {
				start, err = time.Parse("2006-01-02", barsStart)
				if err != nil {
					return fmt.Errorf("parsing --start: %w", err)
				}
			}
			if barsEnd != "" {
				end, err = time.Parse("2006-01-02", barsEnd)
				if err != nil {
					return fmt.Errorf("parsing --end: %w", err)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			bars, err := a.Gateway.GetBars(ctx, strings.ToUpper(args[0]), barsInterval, start, end, barsProvider)
			if err != nil {
				return err
			}

			fmt.Printf("%d bars (%s)\n", len(bars), barsInterval)
			for _, b := range bars {
				fmt.Printf("%s  O %.2f  H %.2f  L %.2f  C %.2f  V %.0f\n",
					b.Time.Format("2006-01-02 15:04"), b.Open, b.High, b.Low, b.Close, b.Volume)
			}
			return nil
		})
	},
}

func init() {
	barsCmd.Flags().StringVarP(&barsProvider, "provider", "p", "", "force a specific provider")
	barsCmd.Flags().StringVarP(&barsInterval, "interval", "i", "1Day", "bar interval (1Min, 5Min, 1Hour, 1Day)")
	barsCmd.Flags().StringVar(&barsStart, "start", "", "start date (YYYY-MM-DD, default 30 days ago)")
	barsCmd.Flags().StringVar(&barsEnd, "end", "", "end date (YYYY-MM-DD, default now)")
	rootCmd.AddCommand(barsCmd)
}
