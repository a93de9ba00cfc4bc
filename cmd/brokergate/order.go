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

var (
	orderProvider string
	orderSide     string
	orderType     string
	orderQty      float64
	orderLimit    float64
	orderStop     float64
	orderTIF      string
)

var orderCmd = &cobra.Command{
	Use:   "order SYMBOL",
	Short: "Place an order through a brokerage provider",
	Long: `Place an order. Orders are never cached or deduplicated: running
the same command twice places two orders.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			req := core.OrderRequest{
				Symbol:      strings.ToUpper(args[0]),
				Side:        core.OrderSide(orderSide),
				Type:        core.OrderType(orderType),
				Quantity:    orderQty,
				LimitPrice:  orderLimit,
				StopPrice:   orderStop,
				TimeInForce: orderTIF,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			ack, err := a.Gateway.PlaceOrder(ctx, req, orderProvider)
			if err != nil {
				return err
			}
			fmt.Printf("order %s %s (%s)\n", ack.OrderID, ack.Status, ack.Provider)
			if ack.ClientOrderID != "" {
				fmt.Printf("  client order id %s\n", ack.ClientOrderID)
			}
			if ack.FilledQty > 0 {
				fmt.Printf("  filled %.2f at %s\n", ack.FilledQty, floatStr(ack.AvgFillPrice))
			}
			return nil
		})
	},
}

var ordersAccount string

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List open orders from a brokerage provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			orders, err := a.Gateway.GetOrders(ctx, ordersAccount, orderProvider)
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				fmt.Println("no open orders")
				return nil
			}
			for _, o := range orders {
				fmt.Printf("%-12s %-8s %-10s filled %.2f  (%s)\n",
					o.OrderID, o.Symbol, o.Status, o.FilledQty, o.Provider)
			}
			return nil
		})
	},
}

func init() {
	orderCmd.Flags().StringVarP(&orderProvider, "provider", "p", "", "force a specific provider")
	orderCmd.Flags().StringVarP(&orderSide, "side", "s", "buy", "order side (buy, sell)")
	orderCmd.Flags().StringVarP(&orderType, "type", "t", "market", "order type (market, limit, stop)")
	orderCmd.Flags().Float64VarP(&orderQty, "qty", "q", 0, "order quantity")
	orderCmd.Flags().Float64VarP(&orderLimit, "limit", "l", 0, "limit price (limit orders)")
	orderCmd.Flags().Float64Var(&orderStop, "stop", 0, "stop price (stop orders)")
	orderCmd.Flags().StringVar(&orderTIF, "tif", "", "time in force (day, gtc)")
	orderCmd.MarkFlagRequired("qty")
	ordersCmd.Flags().StringVarP(&orderProvider, "provider", "p", "", "force a specific provider")
	ordersCmd.Flags().StringVarP(&ordersAccount, "account", "a", "", "account reference (provider default when empty)")
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(ordersCmd)
}
