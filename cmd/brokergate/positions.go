package main

import (
	"context"
	"fmt"
	"time"

	"github.com/openfold/brokergate/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	positionsProvider string
	positionsAccount  string
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions from a brokerage provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			positions, err := a.Gateway.GetPositions(ctx, positionsAccount, positionsProvider)
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				fmt.Println("no open positions")
				return nil
			}
			for _, p := range positions {
				fmt.Printf("%-8s qty %10.2f  avg cost %10.2f  value %10s  P/L %10s  (%s)\n",
					p.Symbol, p.Quantity, p.AvgCost,
					floatStr(p.MarketValue), floatStr(p.UnrealizedPL), p.Provider)
			}
			return nil
		})
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the account summary from a brokerage provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			acct, err := a.Gateway.GetAccount(ctx, positionsProvider)
			if err != nil {
				return err
			}
			fmt.Printf("account %s (%s)\n", acct.AccountID, acct.Provider)
			fmt.Printf("  cash          %.2f %s\n", acct.Cash, acct.Currency)
			fmt.Printf("  equity        %s\n", floatStr(acct.Equity))
			fmt.Printf("  buying power  %s\n", floatStr(acct.BuyingPower))
			return nil
		})
	},
}

func init() {
	positionsCmd.Flags().StringVarP(&positionsProvider, "provider", "p", "", "force a specific provider")
	positionsCmd.Flags().StringVarP(&positionsAccount, "account", "a", "", "account reference (provider default when empty)")
	accountCmd.Flags().StringVarP(&positionsProvider, "provider", "p", "", "force a specific provider")
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(accountCmd)
}
