package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openfold/brokergate/internal/app"
	"github.com/openfold/brokergate/internal/core"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var quoteProvider string

var quoteCmd = &cobra.Command{
	Use:   "quote SYMBOL",
	Short: "Fetch a normalized quote for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			q, err := a.Gateway.GetQuote(ctx, strings.ToUpper(args[0]), quoteProvider)
			if err != nil {
				return err
			}
			printQuote(q)
			return nil
		})
	},
}

func init() {
	quoteCmd.Flags().StringVarP(&quoteProvider, "provider", "p", "", "force a specific provider")
	rootCmd.AddCommand(quoteCmd)
}

func printQuote(q *core.Quote) {
	fmt.Printf("%s  %.2f  (%s)\n", q.Symbol, q.Price, q.Provider)
	if q.Bid.Valid || q.Ask.Valid {
		fmt.Printf("  bid %s x %s   ask %s x %s\n",
			floatStr(q.Bid), floatStr(q.BidSize), floatStr(q.Ask), floatStr(q.AskSize))
	}
	if q.Volume.Valid {
		fmt.Printf("  volume %.0f\n", q.Volume.Value)
	}
	fmt.Printf("  as of %s\n", q.Time.Format(time.RFC3339))
}

func floatStr(f core.Float) string {
	if !f.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", f.Value)
}
